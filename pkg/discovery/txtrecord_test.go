package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTXTRoundTrip(t *testing.T) {
	info := PresenceInfo{Host: "coap://192.168.1.20:5683", Nonce: 2882400018, TTL: 60}

	strs := TXTRecordsToStrings(EncodePresenceTXT(info))
	assert.Equal(t, []string{"h=coap://192.168.1.20:5683", "n=2882400018", "ttl=60"}, strs)

	got, err := DecodePresenceTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestDecodePresenceTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing host", TXTRecordMap{TXTKeyNonce: "1"}, ErrMissingRequired},
		{"host without scheme", TXTRecordMap{TXTKeyHost: "10.0.0.1:5683", TXTKeyNonce: "1"}, ErrInvalidHost},
		{"bare scheme", TXTRecordMap{TXTKeyHost: "coap://", TXTKeyNonce: "1"}, ErrInvalidHost},
		{"missing nonce", TXTRecordMap{TXTKeyHost: "coap://a:1"}, ErrMissingRequired},
		{"nonce overflow", TXTRecordMap{TXTKeyHost: "coap://a:1", TXTKeyNonce: "4294967296"}, ErrInvalidNonce},
		{"bad ttl", TXTRecordMap{TXTKeyHost: "coap://a:1", TXTKeyNonce: "1", TXTKeyTTL: "x"}, ErrInvalidTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePresenceTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodePresenceTXTOptionalTTL(t *testing.T) {
	info, err := DecodePresenceTXT(TXTRecordMap{TXTKeyHost: "coap://a:1", TXTKeyNonce: "7"})
	require.NoError(t, err)
	assert.Zero(t, info.TTL)
	assert.Equal(t, uint32(7), info.Nonce)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "", "b=x=y"})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "x=y"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("iotcon"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrEmptyInstanceName)

	long := make([]byte, MaxInstanceNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, ValidateInstanceName(string(long)), ErrInstanceNameTooLong)
}
