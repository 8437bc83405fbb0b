package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()

	valid := []LogLevel{LogDebug, LogInfo, LogWarn, LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	for _, l := range []LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = true, want false", l)
		}
	}
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	var got struct {
		D Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte(`d: 2s`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.D.Std() != 2*time.Second {
		t.Fatalf("duration = %v, want 2s", got.D.Std())
	}

	if err := yaml.Unmarshal([]byte(`d: soon`), &got); err == nil {
		t.Fatal("expected error for non-duration value")
	}
}

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}
