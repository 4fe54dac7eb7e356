package discovery

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/iotcon/iotcon-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodePresenceTXT creates the TXT records for a presence instance.
func EncodePresenceTXT(info PresenceInfo) TXTRecordMap {
	return TXTRecordMap{
		TXTKeyHost:  info.Host,
		TXTKeyNonce: strconv.FormatUint(uint64(info.Nonce), 10),
		TXTKeyTTL:   strconv.FormatUint(uint64(info.TTL), 10),
	}
}

// DecodePresenceTXT parses presence TXT records. The ttl is optional.
func DecodePresenceTXT(txt TXTRecordMap) (PresenceInfo, error) {
	var info PresenceInfo

	host, ok := txt[TXTKeyHost]
	if !ok {
		return info, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHost)
	}
	if !strings.HasPrefix(host, wire.CoAPScheme) || len(host) == len(wire.CoAPScheme) {
		return info, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	info.Host = host

	nStr, ok := txt[TXTKeyNonce]
	if !ok {
		return info, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyNonce)
	}
	n, err := strconv.ParseUint(nStr, 10, 32)
	if err != nil {
		return info, ErrInvalidNonce
	}
	info.Nonce = uint32(n)

	if tStr, ok := txt[TXTKeyTTL]; ok {
		ttl, err := strconv.ParseUint(tStr, 10, 32)
		if err != nil {
			return info, ErrInvalidTTL
		}
		info.TTL = uint32(ttl)
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		if s == "" {
			continue
		}
		k, v, _ := strings.Cut(s, "=")
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return ErrEmptyInstanceName
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
