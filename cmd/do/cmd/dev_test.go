package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/templui/storyline/internal/config"
)

func TestDevEnvPinsServerConfig(t *testing.T) {
	cfg := &config.Config{Port: "9000", DBDriver: "sqlite", DBConnection: "./data/dev.db"}
	base := []string{"HOME=/home/dev", "PORT=8090", "DB_CONNECTION=/tmp/other.db", "APP_ENV=staging"}

	env := devEnv(base, cfg)

	assert.Equal(t, []string{
		"HOME=/home/dev",
		"APP_ENV=development",
		"PORT=9000",
		"DB_DRIVER=sqlite",
		"DB_CONNECTION=./data/dev.db",
	}, env)
	assert.Equal(t, "PORT=8090", base[1], "input is not modified")
}

func TestAirArgsBuildServer(t *testing.T) {
	args := airArgs()
	assert.Equal(t, "air", args[0])
	assert.Contains(t, args, "go build -o ./tmp/main ./cmd/server")
}
