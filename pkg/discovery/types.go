package discovery

import (
	"errors"
	"time"
)

// DNS-SD naming.
const (
	// ServiceType is the DNS-SD service type chat sessions register
	// under.
	ServiceType = "_coop._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// BrowseTimeout is the default timeout for one-shot lookups.
	BrowseTimeout = 10 * time.Second
)

// TXT record keys.
const (
	// TXTKeyUser carries the announcing user's name.
	TXTKeyUser = "user"

	// TXTKeyVersion carries the protocol version.
	TXTKeyVersion = "ver"
)

// ProtocolVersion is the announced wire protocol version.
const ProtocolVersion = "1"

// Discovery errors.
var (
	// ErrMissingRequired indicates a TXT record lacks a required key.
	ErrMissingRequired = errors.New("missing required TXT field")

	// ErrNotFound indicates no matching service was discovered in
	// time.
	ErrNotFound = errors.New("service not found")
)

// SessionInfo describes the local session advertisement.
type SessionInfo struct {
	// Username is the announced user name.
	Username string

	// Port is the chat listen port.
	Port uint16
}

// SessionService is a discovered chat session.
type SessionService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the announced mDNS hostname.
	Host string

	// Port is the chat listen port.
	Port uint16

	// Addresses are the IP addresses the session is reachable at.
	Addresses []string

	// Username is the announcing user's name from the TXT record.
	Username string
}
