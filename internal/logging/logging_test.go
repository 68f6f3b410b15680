// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"verbose", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "nonsense")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.NoColor || !cfg.Timestamp {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestNew_LevelFilter(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogNoColor, "1")

	var buf bytes.Buffer
	log := New("radarstat", "info", &buf)
	log.Debug().Msg("hidden")
	log.Info().Int("sensor", 7).Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message leaked at info level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "sensor=7") || !strings.Contains(out, "app=radarstat") {
		t.Errorf("output = %s", out)
	}
}
