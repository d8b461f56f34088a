// Package devfeed is a synthetic trade-processing service for local runs and
// integration tests.
//
// It serves the REST endpoints under /v1 and a push channel at /v1/ws. Every
// placed trade is persisted in memory, folded into the aggregates, and
// broadcast as a TRADE_PERSISTED frame followed by one frame per push-driven
// aggregate. Country codes are only available by polling.
package devfeed
