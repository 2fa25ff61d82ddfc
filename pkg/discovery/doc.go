// Package discovery announces and finds chat sessions on the local
// network via mDNS/DNS-SD.
//
// A listening client advertises itself under the "_coop._tcp" service
// type with its username in the TXT record; other clients browse for
// such advertisements to offer one-click joining instead of manual
// host and port entry. Discovery is strictly optional, a session works
// the same when joined by address.
package discovery
