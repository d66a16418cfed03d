package push

import "fmt"

// ConfigErrorKind enumerates startup configuration failures.
type ConfigErrorKind string

const (
	ConfigMissing         ConfigErrorKind = "missing"
	ConfigInvalidEncoding ConfigErrorKind = "invalid_encoding"
	ConfigInvalidKeyShape ConfigErrorKind = "invalid_key_shape"
	ConfigKeyMismatch     ConfigErrorKind = "key_mismatch"
)

// ConfigError is fatal: the push subsystem must not start.
type ConfigError struct {
	Field  string
	Kind   ConfigErrorKind
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Kind, e.Detail)
}

// EncodingErrorKind enumerates per-subscription encoding failures.
type EncodingErrorKind string

const (
	EncodingInvalidSubscriptionKeys EncodingErrorKind = "invalid_subscription_keys"
	EncodingInvalidEndpoint         EncodingErrorKind = "invalid_endpoint"
	EncodingPayloadTooLarge         EncodingErrorKind = "payload_too_large"
)

// EncodingError is scoped to one subscription; callers continue with the rest.
type EncodingError struct {
	Kind EncodingErrorKind
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func encodingErr(kind EncodingErrorKind, format string, args ...any) *EncodingError {
	return &EncodingError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
