package userutil

import (
	"errors"
	"os/user"
	"testing"
)

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "domain user", input: "DOMAIN\\user", want: "DOMAIN_user"},
		{name: "email", input: "user@domain.com", want: "user_domain.com"},
		{name: "empty", input: "", want: "unknown"},
		{name: "whitespace", input: "  ", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUsername(tt.input); got != tt.want {
				t.Fatalf("SanitizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameForUID(t *testing.T) {
	orig := lookupUID
	t.Cleanup(func() { lookupUID = orig })

	lookupUID = func(uid string) (*user.User, error) {
		if uid == "1000" {
			return &user.User{Uid: uid, Username: "alice"}, nil
		}
		return nil, errors.New("unknown user")
	}

	if got := NameForUID(1000); got != "alice" {
		t.Fatalf("NameForUID(1000) = %q, want alice", got)
	}
	if got := NameForUID(42); got != "" {
		t.Fatalf("NameForUID(42) = %q, want empty", got)
	}
	if got := NameForUID(-1); got != "" {
		t.Fatalf("NameForUID(-1) = %q, want empty", got)
	}
}
