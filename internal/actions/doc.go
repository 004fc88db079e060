// Package actions holds the bot's built-in commands and component handlers.
//
// Every handler is an action.Func. Register binds them to a registry:
//
//	command/ping        latency check
//	command/data        owner-only view, dump and clear of stored documents
//	command/role        draft, list and post role selector buttons
//	button/role-add     toggle the role named in the custom id
//	command/mail        set up ModMail, count and view archives
//	button/mail-new     open a ticket channel
//	button/mail-close   archive and close a ticket
//	button/mail-info    show the idle timeout
//
// Idle tickets are closed by SweepIdle, which the CLI schedules on an
// interval taken from the bot/config document.
package actions
