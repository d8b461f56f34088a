// Package config loads the dashboard configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing.
// Every threshold is read once at startup and fixed for the process lifetime.
package config
