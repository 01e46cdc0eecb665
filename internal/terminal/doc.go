// Package terminal implements the interactive remote command session engine.
//
// A terminal widget delivers keystrokes one at a time; the exec endpoint only
// understands whole commands and has no persistent connection. This package
// sits in between and keeps up the appearance of a live shell.
//
// # Line discipline
//
// Machine is a pure state machine with three states:
//
//	idle      prompt shown, edit buffer empty
//	editing   edit buffer holds at least one character
//	awaiting  a command was submitted, its reply is pending
//
// Step consumes one Event (character, backspace, carriage return) and
// returns the next Machine plus a list of Effects: writes to the render sink,
// a submission, or arming and disarming the reply timer. Events that arrive
// while awaiting are queued and replayed once Resolve applies the reply, so
// type-ahead is neither lost nor raced onto the wire.
//
// # Sessions
//
// Session executes a Machine's effects against a ports.RenderSink and a
// ports.ExecTransport. Every submission carries a sequence number; a reply
// whose number no longer matches (because the timer already resolved it as a
// timeout) is discarded. A session never starts a transport call before the
// previous call for its container has returned.
//
// # Registry
//
// Registry maps container IDs to sessions for one UI. Opening a container
// twice returns the same session; closing it discards any result still in
// flight. The optional ports.ContainerDirectory restricts sessions to running
// containers.
package terminal
