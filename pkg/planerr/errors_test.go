package planerr

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigError_Is(t *testing.T) {
	err := Configf("SORT", "db.events", "unknown option %q", "foo")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if ce.Strategy != "SORT" || ce.Table != "db.events" {
		t.Fatalf("unexpected strategy/table: %s/%s", ce.Strategy, ce.Table)
	}
	for _, part := range []string{"SORT", "db.events", `"foo"`} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("error %q does not mention %s", err.Error(), part)
		}
	}
}

func TestConfigError_WrapsCause(t *testing.T) {
	err := ConfigWrap("SORT", "db.events", ErrInvalidSortOrder, "sort order rejected")
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, ErrInvalidSortOrder) {
		t.Fatalf("expected both sentinels, got %v", err)
	}
}
