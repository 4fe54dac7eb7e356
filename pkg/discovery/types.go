package discovery

import (
	"errors"
	"time"
)

// mDNS service parameters.
const (
	ServiceType = "_iotcon-presence._udp"
	Domain      = "local."

	// DefaultInstance names the advertised instance when none is configured.
	DefaultInstance = "iotcon"

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// DefaultTTL is the DNS record TTL when the presence TTL is zero.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyHost  = "h"
	TXTKeyNonce = "n"
	TXTKeyTTL   = "ttl"
)

var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidNonce        = errors.New("invalid presence nonce")
	ErrInvalidTTL          = errors.New("invalid presence ttl")
	ErrInvalidHost         = errors.New("invalid presence host")
	ErrEmptyInstanceName   = errors.New("empty instance name")
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// PresenceInfo is what one presence instance advertises.
type PresenceInfo struct {
	Host  string
	Nonce uint32
	TTL   uint32
}
