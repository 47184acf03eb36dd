package advisor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL string `envconfig:"ADVISOR_BASE_URL" default:"http://localhost:8099"`
	APIKey  string `envconfig:"ADVISOR_API_KEY"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
