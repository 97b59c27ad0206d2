package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewDefaultsToInfo(t *testing.T) {
	t.Setenv("CREWLEDGER_LOG_LEVEL", "")
	if got := New("crewledger").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("default level = %v, want info", got)
	}
}

func TestNewReadsLevelFromEnv(t *testing.T) {
	t.Setenv("CREWLEDGER_LOG_LEVEL", "DEBUG")
	if got := New("crewledger").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("level = %v, want debug", got)
	}
}

func TestNewIgnoresGarbageLevel(t *testing.T) {
	t.Setenv("CREWLEDGER_LOG_LEVEL", "shouty")
	if got := New("crewledger").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info", got)
	}
}
