// Package model defines the data types shared by every dashboard component.
//
// Conventions:
//   - Category is a closed enumeration; every table keyed by category lives in this package
//   - Payloads travel as json.RawMessage and are only decoded by the render layer
//   - Amounts are float64 currency units, volumes are int64 trade counts
package model
