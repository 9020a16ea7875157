// Package exapp starts and stops named modules in dependency order. Modules
// declare the modules they depend on and an optional priority; the resolver
// computes a deterministic layered order, the App starts each module in turn
// and later stops them in exact reverse. Module operations may complete
// synchronously or from another goroutine, failures move the App to a Failed
// state that can still be cleaned up, and one-shot handlers plus per-module
// hooks report progress for logging, metrics and tracing.
package exapp
