package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr string `envconfig:"SERVER_ADDR"`
	JwtSecret  string `envconfig:"JWT_SECRET"`
	// Accounts the scenarios act as, provisioned beforehand with cmd/inspect
	Owner  string `envconfig:"E2E_OWNER" default:"alice"`
	Member string `envconfig:"E2E_MEMBER" default:"bob"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
