package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
)

// Well-known addresses and paths.
const (
	CoAPScheme       = "coap://"
	MulticastAddress = "coap://224.0.1.187"
	DiscoveryPath    = "/oc/core"
	PresencePath     = "/oc/presence"
)

// DiscoveredResource is one element of a discovery response.
type DiscoveredResource struct {
	URIPath    string
	ServerID   string
	Types      []string
	Interfaces model.Interface
	Observable bool
	Secure     bool
	Port       uint16
}

// DiscoveryURI returns the URI a discovery request for resType is sent to.
// An empty host or the multicast address selects multicast discovery.
func DiscoveryURI(host, resType string) string {
	var uri string
	if host == "" || host == MulticastAddress {
		uri = DiscoveryPath
	} else {
		uri = withScheme(host) + DiscoveryPath
	}
	if resType != "" {
		uri += "?rt=" + resType
	}
	return uri
}

// PresenceURI returns the presence URI for host. An empty host selects
// multicast presence.
func PresenceURI(host string) string {
	if host == "" || host == MulticastAddress {
		return MulticastAddress + PresencePath
	}
	return withScheme(host) + PresencePath
}

// RequestURI joins host and uriPath, strips a trailing '/', and appends the
// encoded query.
func RequestURI(host, uriPath string, q *model.Query) string {
	uri := host + uriPath
	if len(uri) > 1 {
		uri = strings.TrimSuffix(uri, "/")
	}
	if q != nil {
		uri += q.Encode()
	}
	return uri
}

// HostPort formats an address and port as a coap host.
func HostPort(addr string, port uint16) string {
	if strings.Contains(addr, ":") {
		addr = "[" + addr + "]"
	}
	return CoAPScheme + addr + ":" + strconv.Itoa(int(port))
}

func withScheme(host string) string {
	if strings.HasPrefix(host, CoAPScheme) {
		return host
	}
	return CoAPScheme + host
}

// EncodeDiscovery encodes resources as a discovery payload.
func EncodeDiscovery(resources []DiscoveredResource) ([]byte, error) {
	return writeJSON(func(w *jsonWriter) {
		w.token(jsontext.BeginObject)
		w.name(KeyOC)
		w.token(jsontext.BeginArray)
		for _, res := range resources {
			w.token(jsontext.BeginObject)
			w.name(KeyHref)
			w.token(jsontext.String(res.URIPath))
			if res.ServerID != "" {
				w.name(KeyServerID)
				w.token(jsontext.String(res.ServerID))
			}
			w.name(KeyProperty)
			w.token(jsontext.BeginObject)
			w.name(KeyResourceTypes)
			w.strings(res.Types)
			w.name(KeyInterfaces)
			w.strings(res.Interfaces.Strings())
			if res.Observable {
				w.name(KeyObservable)
				w.token(jsontext.Int(1))
			}
			if res.Secure {
				w.name(KeySecure)
				w.token(jsontext.Int(1))
				w.name(KeyPort)
				w.token(jsontext.Int(int64(res.Port)))
			}
			w.token(jsontext.EndObject)
			w.token(jsontext.EndObject)
		}
		w.token(jsontext.EndArray)
		w.token(jsontext.EndObject)
	})
}

// DecodeDiscovery decodes a discovery payload. Elements without an href are
// rejected.
func DecodeDiscovery(data []byte) ([]DiscoveredResource, error) {
	root, err := parseJSON(data)
	if err != nil {
		return nil, err
	}
	oc, ok := root.member(KeyOC)
	if !ok || oc.kind != '[' {
		return nil, fmt.Errorf("%w: missing %q array", ErrInvalidJSON, KeyOC)
	}

	out := make([]DiscoveredResource, 0, len(oc.elems))
	for i, elem := range oc.elems {
		res, err := discoveredFromNode(elem)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func discoveredFromNode(n node) (DiscoveredResource, error) {
	var res DiscoveredResource
	if n.kind != '{' {
		return res, fmt.Errorf("%w: resource is not an object", ErrInvalidJSON)
	}

	href, ok := n.member(KeyHref)
	if !ok || href.kind != '"' || href.text == "" {
		return res, fmt.Errorf("missing %q: %w", KeyHref, errcode.ErrInvalidParameter)
	}
	res.URIPath = href.text

	if sid, ok := n.member(KeyServerID); ok && sid.kind == '"' {
		res.ServerID = sid.text
	}

	readFlags(n, &res)
	if prop, ok := n.member(KeyProperty); ok {
		types, ifaces, err := propertyFromNode(prop)
		if err != nil {
			return res, err
		}
		res.Types = types.Slice()
		types.Release()
		res.Interfaces = ifaces
		readFlags(prop, &res)
	}
	return res, nil
}

func readFlags(n node, res *DiscoveredResource) {
	if obs, ok := n.member(KeyObservable); ok {
		res.Observable = truthy(obs)
	}
	if sec, ok := n.member(KeySecure); ok {
		res.Secure = truthy(sec)
	}
	if port, ok := n.member(KeyPort); ok && port.kind == '0' {
		if p, err := strconv.ParseUint(port.text, 10, 16); err == nil {
			res.Port = uint16(p)
		}
	}
}

func truthy(n node) bool {
	switch n.kind {
	case 't':
		return true
	case '0':
		return n.text != "0"
	default:
		return false
	}
}
