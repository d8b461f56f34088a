// Package poller implements the polling scheduler.
//
// The scheduler:
//   - Runs one self-rescheduling loop per category (Task)
//   - Waits InitialDelay, fetches, routes the result as a poll snapshot, then waits Interval
//   - Swallows fetch failures; the next tick retries
//   - Stops a single loop before its next fetch without aborting one in flight
package poller
