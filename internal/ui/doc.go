// Package ui renders dashboard updates in the terminal with bubbletea, or as
// log lines in headless mode.
package ui
