package planerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("rewriteplan: invalid configuration")
	ErrTableNotFound    = errors.New("rewriteplan: table not found")
	ErrUnknownStrategy  = errors.New("rewriteplan: unknown strategy")
	ErrInvalidManifest  = errors.New("rewriteplan: invalid manifest")
	ErrInvalidSortOrder = errors.New("rewriteplan: incompatible sort order")
)

// ConfigError is returned when a strategy cannot be configured for a table.
type ConfigError struct {
	Strategy string
	Table    string
	Msg      string
	Err      error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: strategy %s, table %s: %s", ErrInvalidConfig.Error(), e.Strategy, e.Table, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the configuration sentinel and the cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Err}
}

// Configf builds a ConfigError.
func Configf(strategy, table, format string, args ...any) error {
	return &ConfigError{Strategy: strategy, Table: table, Msg: fmt.Sprintf(format, args...)}
}

// ConfigWrap builds a ConfigError around a cause.
func ConfigWrap(strategy, table string, err error, format string, args ...any) error {
	return &ConfigError{Strategy: strategy, Table: table, Msg: fmt.Sprintf(format, args...), Err: err}
}
