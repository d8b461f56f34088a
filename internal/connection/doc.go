// Package connection implements the push channel of the dashboard.
//
// The push channel:
//   - Holds exactly one WebSocket connection per session (no reconnect)
//   - Decodes {"event": TAG, "data": payload} frames into envelopes
//   - Routes envelopes to the lane registry; bad frames are dropped, never fatal
//   - Reports "opened" and a single "lost" signal to the banner
//   - Takes closed vs errored from the client's Disconnect classification
package connection
