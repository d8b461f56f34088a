// Package capability decides whether a session can use the push channel.
package capability

import (
	"net/url"
	"runtime"
)

// Environment describes what the runtime offers for live updates.
type Environment struct {
	PushURL      string // WebSocket endpoint; empty when none is configured
	PushDisabled bool   // Operator opted out of push
	Isolation    bool   // Lanes may run on their own goroutines
	Workers      int    // Schedulable CPUs (GOMAXPROCS)
}

// Detect builds an Environment from configuration and the Go runtime.
func Detect(pushURL string, disabled, isolated bool) Environment {
	return Environment{
		PushURL:      pushURL,
		PushDisabled: disabled,
		Isolation:    isolated,
		Workers:      runtime.GOMAXPROCS(0),
	}
}

// SupportsPush reports whether a persistent bidirectional channel and
// isolated lane execution are both available.
func SupportsPush(env Environment) bool {
	if env.PushDisabled || !env.Isolation || env.Workers < 1 {
		return false
	}
	return validPushURL(env.PushURL)
}

func validPushURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}
