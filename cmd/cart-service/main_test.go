package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	setupLogger("debug")
	if got := log.GetLevel(); got != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}

	setupLogger("not-a-level")
	if got := log.GetLevel(); got != log.InfoLevel {
		t.Fatalf("expected fallback to info level, got %s", got)
	}
}
