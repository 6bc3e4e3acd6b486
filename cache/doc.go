// Package cache is a method-result cache built as a weave aspect.
//
// Each cached method gets a Plan: an action (Set or Remove), a key template
// (see package keytpl), a backend (Memory or Distributed), a TTL and optional
// per-result functions. Plans come from markers the implementation declares
// (Declarer) or from an explicit Setup, and are validated when the aspect is
// added to a chain, so mistakes surface at startup.
//
// Per call:
//
//	Set     before: key from arguments -> hit? return it, skip the method
//	        after:  key from arguments and result -> condition -> store with TTL + offset
//	Remove  after:  key -> condition -> delete
//
// Nil results are never stored. Errors returned by the method are passed
// through untouched and nothing is written for them.
//
// Keys are "<prefix><rendered template>". The default prefix is
// "<process name>.<implementation type>.".
package cache
