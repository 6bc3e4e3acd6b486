// Package weave implements method interception for Go interfaces: a proxy
// implementing a contract routes every call through a Dispatcher, which runs
// the aspects of a Chain around the real implementation.
//
// Components:
//   - Method / Target: descriptors of a contract (names, parameters, result).
//   - Chain: ordered aspects for one (contract, implementation) pair.
//   - Registry: chains of one configuration scope.
//   - Dispatcher: the before / main / after protocol.
//
// Dispatch:
//
//	before(0) .. before(N-1)   registration order, DisableMain is sticky
//	main                       skipped when disabled; error or panic captured
//	after(N-1) .. after(0)     aspects that set DisableAfter are skipped
//	return                     main error unchanged, or the panic re-raised
//
// Proxies are plain types:
//
//	reg := weave.NewRegistry(weave.RegistryOptions{})
//	chain := weave.For[UserService, *userService](reg, getUser, updateUser)
//	_ = chain.Configure(cache.Factory(opts, setup))
//	svc := &userServiceProxy{d: weave.NewDispatcher(chain, impl), impl: impl}
//
// The cache package provides the method-result cache aspect, otelaspect a
// tracing aspect.
package weave
