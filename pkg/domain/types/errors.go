package types

// ErrorKind classifies an error for queue retry policy and HTTP status
// mapping (spec §7). errutil.Kind derives it from the sentinel errors in
// pkg/domain/interfaces with errors.Is, so callers need not type-switch
// on every concrete error value.
type ErrorKind string

const (
	ErrorKindTransient     ErrorKind = "transient"       // network, timeout, 5xx, provider 429
	ErrorKindRateLimited   ErrorKind = "rate_limited"     // explicit budget refusal
	ErrorKindAuthExpired   ErrorKind = "auth_expired"     // credentials irrecoverable without user action
	ErrorKindExtraction    ErrorKind = "extraction_parse" // LLM output did not conform
	ErrorKindResolverConf  ErrorKind = "resolver_conflict"
	ErrorKindPersistConf   ErrorKind = "persistence_conflict"
	ErrorKindFatalConfig   ErrorKind = "fatal_config"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindInvalidInput  ErrorKind = "invalid_input"
)

// Retryable reports whether a queue worker should retry (vs dead-letter)
// an error of this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTransient, ErrorKindRateLimited, ErrorKindPersistConf:
		return true
	default:
		return false
	}
}
