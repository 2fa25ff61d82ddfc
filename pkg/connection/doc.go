// Package connection keeps a chat session alive across failures of the
// connection that joined it.
//
// A Rejoiner owns a join function and re-runs it with exponential
// backoff whenever the session is reported lost. It only re-establishes
// the entry point into the session; the peer connections learned
// through it are rebuilt by the usual participant bootstrap.
//
// # Backoff
//
// Delays start at 1 second and double up to a 60 second ceiling, with
// up to 25% random jitter added to each delay so that several clients
// losing the same session do not retry in lockstep. A successful join
// resets the schedule.
package connection
