// Package harness runs scripted bot conversations against the built-in
// actions and checks what happened.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: role_draft
//	description: "Drafting roles refuses duplicates"
//	owner_id: owner
//	clock: "2024-03-01T12:00:00Z"
//	seed:
//	  - id: bot/config
//	    value: { dev: true }
//	steps:
//	  - event:
//	      kind: command
//	      name: role
//	      guild: G
//	      user: U
//	      options: { subcommand: add, role: R1 }
//	    expect:
//	      success: true
//	  - advance: 2h
//	    sweep: true
//	    expect:
//	      closed: 0
//	assertions:
//	  - type: trace_count
//	    action: command/role
//	    count: 1
//	  - type: final_state
//	    document: role/G_U
//	    expect: [{ role_id: R1 }]
//
// A step is exactly one of event, post (a chat message in a channel) or
// sweep (the idle ticket sweep). advance moves the clock before the step.
//
// # Assertion Types
//
//   - trace_contains: an event for the action was dispatched, with matching options
//   - trace_order: events for the actions were dispatched in this order
//   - trace_count: the action was dispatched exactly N times
//   - final_state: a stored document matches expect (subset for objects), or is absent
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store, a fake guild,
// a frozen clock and a fixed invocation id, so traces are byte-identical
// across runs and can be compared against golden files.
package harness
