package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	IndodaxBaseURL string `envconfig:"INDODAX_BASE_URL" default:"https://indodax.com"`
	TickerWSURL    string `envconfig:"TICKER_WS_URL" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
