// Package iox holds cleanup helpers for closers whose errors cannot be acted on.
package iox

import "io"

// DiscardClose closes c and drops the error, for deferred cleanup of
// connections, response bodies and sinks:
//
//	defer iox.DiscardClose(client)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops its error, e.g. a deferred logger Sync:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
