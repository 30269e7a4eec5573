// Package debug holds contract assertions that are compiled in only with the
// "debug" build tag:
//
//	go test -tags debug ./...
//
// Without the tag Assert is a no-op and callers fall back to their
// documented non-corrupting behaviour.
package debug
