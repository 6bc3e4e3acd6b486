package cache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The aspect calls them on the request path; wrap slow sinks with hooks/async.
type Hooks interface {
	// A Set plan found a usable entry and skipped the method.
	Hit(method, key string, p Provider)
	// A Set plan found nothing usable and let the method run.
	Miss(method, key string, p Provider)
	// A result was written.
	Stored(method, key string, p Provider, ttl time.Duration)
	// A Remove plan, or the manager, deleted a key.
	Removed(method, key string, p Provider)

	// A cache operation was skipped.
	// reason ∈ {"no_key", "condition", "nil_result", "ttl", "stale_gen", "rejected", "encode"}
	Skipped(method, key, reason string)

	// A cached value did not match the method's result type and was ignored.
	TypeMismatch(method, key, got, want string)

	// An unusable distributed entry was deleted on read.
	// reason ∈ {"corrupt", "codec_mismatch", "gen_mismatch", "value_decode"}
	SelfHeal(key, reason string)

	// A provider returned an error. op ∈ {"get", "set", "del"}
	ProviderError(op, key string, err error)

	// Generation snapshot or bump failed.
	GenError(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, string, Provider)                   {}
func (NopHooks) Miss(string, string, Provider)                  {}
func (NopHooks) Stored(string, string, Provider, time.Duration) {}
func (NopHooks) Removed(string, string, Provider)               {}
func (NopHooks) Skipped(string, string, string)                 {}
func (NopHooks) TypeMismatch(string, string, string, string)    {}
func (NopHooks) SelfHeal(string, string)                        {}
func (NopHooks) ProviderError(string, string, error)            {}
func (NopHooks) GenError(string, error)                         {}
