package main

import (
	"path/filepath"
	"testing"

	"quizroom/internal/config"
)

func TestRun_RejectsInvalidConfigFile(t *testing.T) {
	t.Setenv(config.EnvPrefix+"DATABASE_PATH", filepath.Join(t.TempDir(), "main.db"))
	t.Setenv(config.EnvPrefix+"WEBSOCKET_PING_INTERVAL", "2m")

	if err := run(); err == nil {
		t.Fatal("Expected run to fail when the read timeout does not exceed the ping interval")
	}
}
