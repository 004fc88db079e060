// Package action defines the unit of bot behaviour and the table that holds it.
//
// An Action is a named callback. Names take the form "<kind>/<key>", where
// kind is one of command, button or modal and key is the command name or the
// first ";"-separated segment of a component's custom id. Everything after the
// first ";" is per-invocation payload available through Event.Args.
//
// Invoking an Action never panics or returns an error: the callback's error
// (or a recovered panic) is logged and folded into a Result.
package action
