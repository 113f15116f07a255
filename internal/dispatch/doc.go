// Package dispatch coordinates one emergency alert from trigger to outcome.
//
// A Coordinator owns the state machine. Start moves it out of Idle and
// returns immediately; the attempt then runs on its own goroutine:
//
//   - acquiring_context: the ContextAcquirer authorizes and gathers the
//     photo and location. Soft failures are reported as context_degraded
//     events and the missing field is left out. A hard failure ends the
//     attempt without any network call.
//   - sending: the payload is posted through the AlertSender, bounded by
//     the send timeout. A 2xx response succeeds; any other response fails
//     with the status and body; no response fails as a transport error.
//
// Every attempt ends with exactly one terminal event on the StatusSink.
// There are no automatic retries.
package dispatch
