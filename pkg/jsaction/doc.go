// Package jsaction captures events on server-rendered markup before the
// interactive layer is ready and replays them once real handlers register.
//
// # Pieces
//
// Table is the typed side table of instrumented elements. The server writes
// instrumentation into markup as jsaction="<namespace>.<action>" (see
// package annotate); Table.Decode reads that grammar once so that capture and
// dispatch never parse attribute strings.
//
// Contract installs one capturing listener per event type on a container.
// For every matching event it finds the nearest instrumented ancestor of the
// target, builds an EventInfo and hands it to the installed sink, buffering
// until a sink exists so nothing is lost between page load and dispatcher
// construction.
//
// Dispatcher owns the handler registry keyed by ActionKey and the pending
// queue. Dispatch runs the handler for an event's action or queues the event.
// RegisterHandlers runs the installed replayer immediately, so queued events
// for the new actions drain in the same call.
//
// Replay is the replayer installed by Runtime. It removes every dispatchable
// entry from the queue, collapses repeats of an action into one delivery that
// carries the most recent payload at the position of the first occurrence,
// and leaves the others where they were.
//
// Runtime is the per-page state that ties these together with documented
// initialization order: the contract must exist before a dispatcher can be
// built, and RequireDispatcher fails with ErrNotReady otherwise.
//
// # Concurrency
//
// Nothing in this package locks. All methods must be called from the page's
// event loop goroutine, which makes a registration and the replay pass it
// triggers one atomic step.
package jsaction
