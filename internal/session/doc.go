// Package session wires one dashboard session: capability detection, the lane
// registry, the push channel or the poll scheduler, the staggered bootstrap
// loads, and the optional flush archive.
//
// Each category is driven by exactly one transport at a time. With push
// available, every category except country codes is fed by the push channel;
// otherwise every category is polled. Country codes are always polled, starting
// a few seconds after their bootstrap load succeeds.
package session
