package token

import (
	"testing"
	"time"
)

func TestFailureReason(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		tok   Token
		found bool
		want  string
	}{
		{"missing", Token{}, false, ReasonInvalid},
		{"used", Token{Used: true, ExpiresAt: now.Add(time.Hour)}, true, ReasonAlreadyUsed},
		{"used and expired", Token{Used: true, ExpiresAt: now.Add(-time.Hour)}, true, ReasonAlreadyUsed},
		{"expired", Token{ExpiresAt: now.Add(-time.Second)}, true, ReasonExpired},
		{"valid", Token{ExpiresAt: now.Add(time.Hour)}, true, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FailureReason(tc.tok, tc.found, now); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
