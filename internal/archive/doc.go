// Package archive records flush metadata for diagnostics.
//
// Every update the dashboard renders becomes one FlushRecord: which category
// flushed, why, how many inbound units it coalesced and how long the window was
// open. Payloads are never stored, so the archive cannot replay data.
//
// The Recorder batches records like a time-series writer: a flush happens when
// batch_size records are pending or every flush_interval, whichever comes first.
// Rows are append-only.
package archive
