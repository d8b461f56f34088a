// Package api provides the REST client for the trade aggregation service.
//
// Endpoints (relative to the base URL, e.g. http://localhost:6696/v1):
//   - GET  /latest, /sellvolume, /sellvalue, /buyvolume, /buyvalue,
//     /countriesvolume, /currencypair, /countrycodes  -> {"data": ...}
//   - POST /mocktrade  -> {"event": "TRADE_PERSISTED", "data": trade}
//   - POST /bulktrades -> number of trades placed
//
// Poll requests are not retried by default; a failed poll is picked up
// again on the next tick.
package api
