package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalUsernameFromEnvironment(t *testing.T) {
	for _, env := range usernameEnvVars {
		t.Setenv(env, "")
	}

	assert.Equal(t, "unknown", LocalUsername())

	t.Setenv("USER", "carol")
	assert.Equal(t, "carol", LocalUsername())

	// USERNAME takes precedence over USER.
	t.Setenv("USERNAME", "dave")
	assert.Equal(t, "dave", LocalUsername())
}

func TestListenAddressesNonEmpty(t *testing.T) {
	addresses := ListenAddresses()
	assert.NotEmpty(t, addresses)
}

func TestBanKey(t *testing.T) {
	tests := []struct {
		nick string
		want string
	}{
		{"alice@host@4711", "alice@host"},
		{"alice@host", "alice@host"},
		{"alice", "alice"},
		{"alice@2001:db8::1@4711", "alice@2001:db8::1"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, banKey(tc.nick), tc.nick)
	}
}

func TestNickHost(t *testing.T) {
	tests := []struct {
		nick string
		want string
	}{
		{"alice@host@4711", "host"},
		{"alice@host", "host"},
		{"alice", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, nickHost(tc.nick), tc.nick)
	}
}
