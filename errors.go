package livews

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransport = errors.New("no valid transport dialer provided")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidOptions   = errors.New("invalid options")
	ErrConnectTimeout   = errors.New("connection timeout")
	ErrDisposed         = errors.New("socket disposed")
)

// ConfigurationError reports an unusable argument or option passed to New.
// It is the only error New returns.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("livews: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(field string, err error, format string, args ...any) error {
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
	}
	return &ConfigurationError{Field: field, Err: err}
}
