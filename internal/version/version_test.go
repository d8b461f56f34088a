package version

import "testing"

func TestString(t *testing.T) {
	if got := String(); got != "dev (unknown) built unknown" {
		t.Errorf("String() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "tradewatch/dev" {
		t.Errorf("UserAgent() = %q, want tradewatch/dev", got)
	}
}
