// Package render turns flushed payloads into display-ready fragments and
// defines the sink contract consumed by the user interface.
//
// A Sink receives one Update per flush. Full updates replace the panel of
// their category; partial updates extend it (new latest trades).
// FirstLoad marks the bootstrap load of a category and is the only kind of
// update that advances the progress tracker.
package render
