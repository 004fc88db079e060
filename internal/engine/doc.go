// Package engine routes inbound events to registered actions.
//
// ARCHITECTURE:
//
// Dispatch is synchronous and safe from any goroutine: it resolves the event
// to an Action through the Registry, invokes it, and returns the Result.
//
// Run is the single-writer loop for platform adapters that push events as
// they arrive. Events are enqueued from any goroutine and processed one at a
// time in FIFO order; results go to the handler set with WithResultHandler.
//
// FAILURE POLICY:
//
// Nothing escapes the dispatcher. Callback errors and panics become failed
// Results inside Action.Invoke. Events with no matching action are logged as
// unhandled and dropped. Bot-authored events are ignored. Nothing is retried.
package engine
