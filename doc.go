// Package dlqueue runs retryable download jobs by priority under a
// concurrency cap and tracks every job from submission to a terminal state.
//
// Architecture overview
//
// The pool is composed of loosely coupled parts, each with its own lock:
//
//   1. PriorityQueue
//      Holds pending jobs. Pop returns the highest priority job and keeps
//      arrival order within a level. Pop waits at most a bounded time so
//      workers can notice a stop request.
//
//   2. Gate
//      A counting permit pool. A worker must hold a permit while the
//      Performer runs, so at most MaxConcurrent jobs run at once no matter
//      how many workers there are.
//
//   3. Ledger
//      Active, completed and failed maps guarded by one mutex. The retry
//      policy lives in MarkFailed.
//
//   4. Pool
//      N worker loops tying the three together, plus the submission API,
//      status reporting, progress tracking and an event stream.
//
// Job lifecycle
//
// A job is pending while queued, active while a worker runs it, and ends
// completed or failed. A failed attempt with retries left lowers the job's
// priority by one level (never below PriorityLow) and queues it again, so
// a job is tried at most MaxRetries+1 times.
//
// Every job has a completion signal, Job.Done, closed exactly once when it
// reaches a terminal state. Pool.Wait blocks on those signals instead of
// polling the ledger.
//
// Error handling
//
// The pool distinguishes between two classes of errors:
//
//   - Job errors: returned by the Performer, carried in its Result under
//     "error" (any value), or produced by panic recovery
//   - Internal errors: unexpected failures in the worker's own bookkeeping
//
// Both end as ledger state and are reported via the optional handlers in
// Options. Neither stops a worker, and neither is returned from Submit.
//
// Shutdown
//
// Stop is cooperative. Workers finish the job they hold, in-flight Perform
// calls are never cancelled, and jobs still queued remain there for the
// next Start. Jobs waiting out a retry backoff are queued at once.
//
// Observation
//
// Status gives cheap counts for polling. Subscribe opens an event stream of
// lifecycle transitions and progress reports; slow subscribers lose events
// rather than slowing the workers down.
package dlqueue
