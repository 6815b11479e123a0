package envconfig

import (
	"log/slog"
	"testing"

	"github.com/fencegen/fence/logutil"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		debug string
		trace string
		want  slog.Level
	}{
		{"default", "", "", slog.LevelInfo},
		{"debug", "1", "", slog.LevelDebug},
		{"debug true", "true", "", slog.LevelDebug},
		{"debug false", "false", "", slog.LevelInfo},
		{"debug junk", "junk", "", slog.LevelDebug},
		{"trace", "", "1", logutil.LevelTrace},
		{"trace wins", "1", "1", logutil.LevelTrace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FENCE_DEBUG", tt.debug)
			t.Setenv("FENCE_TRACE", tt.trace)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	for _, name := range []string{"FENCE_DEBUG", "FENCE_TRACE"} {
		v, ok := m[name]
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if v.Name != name || v.Description == "" {
			t.Errorf("malformed entry for %s: %+v", name, v)
		}
	}
}
