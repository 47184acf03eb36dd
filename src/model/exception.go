package model

import "time"

// Exception represents a background failure that must be persisted for
// auditing and monitoring. Scheduled cycles capture errors here instead of
// letting them kill the process.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "botmanager"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "position_monitor"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "RunCycle"

	// Error information
	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// Severity level
	Level string `gorm:"size:20;index" json:"level"` // warn | error | fatal

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
