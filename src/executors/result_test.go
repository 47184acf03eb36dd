package executors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleReportCounts(t *testing.T) {
	report := NewCycleReport("test_cycle")

	report.OK("position:1", "no exit condition")
	report.OK("position:2", "take_profit")
	report.Skip("position:3", "no price in snapshot")
	report.Fail("position:4", "executing exit", errors.New("placement rejected"))

	ok, skipped, failed := report.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)

	require.Len(t, report.Items, 4)
	assert.Error(t, report.Items[3].Err, "the failure must carry its error")
}

func TestCycleReportEmpty(t *testing.T) {
	report := NewCycleReport("empty")

	ok, skipped, failed := report.Counts()
	assert.Zero(t, ok)
	assert.Zero(t, skipped)
	assert.Zero(t, failed)
}
