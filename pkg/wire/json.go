package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
)

// JSON member names of the representation envelope.
const (
	KeyOC            = "oc"
	KeyHref          = "href"
	KeyObservable    = "obs"
	KeyResourceTypes = "rt"
	KeyInterfaces    = "if"
	KeyProperty      = "prop"
	KeyRep           = "rep"
	KeySecure        = "sec"
	KeyPort          = "port"
	KeyServerID      = "sid"
)

// ErrInvalidJSON is returned for any representation JSON that cannot be
// decoded. It wraps errcode.ErrInvalidParameter.
var ErrInvalidJSON = fmt.Errorf("invalid representation json: %w", errcode.ErrInvalidParameter)

// MarshalRep encodes the attributes of r as {"rep":{...}}. A representation
// without attributes encodes as {}.
func MarshalRep(r *model.Representation) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil representation: %w", errcode.ErrInvalidParameter)
	}
	return writeJSON(func(w *jsonWriter) {
		w.writeRep(r)
	})
}

// UnmarshalRep decodes a {"rep":{...}} object. A missing "rep" member yields
// an empty representation.
func UnmarshalRep(data []byte) (*model.Representation, error) {
	root, err := parseJSON(data)
	if err != nil {
		return nil, err
	}
	return reprFromRepObject(root)
}

// EncodeRepresentation encodes r and its children as the "oc" envelope.
func EncodeRepresentation(r *model.Representation) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil representation: %w", errcode.ErrInvalidParameter)
	}
	return writeJSON(func(w *jsonWriter) {
		w.token(jsontext.BeginObject)
		w.name(KeyOC)
		w.token(jsontext.BeginArray)
		w.writeResource(r)
		for _, child := range r.Children() {
			w.writeResource(child)
		}
		w.token(jsontext.EndArray)
		w.token(jsontext.EndObject)
	})
}

// DecodeRepresentation decodes an "oc" envelope. Element 0 becomes the
// returned representation and every further element one of its children.
// A root object without "oc" is decoded as a single resource object.
func DecodeRepresentation(data []byte) (*model.Representation, error) {
	root, err := parseJSON(data)
	if err != nil {
		return nil, err
	}
	if root.kind != '{' {
		return nil, fmt.Errorf("%w: root is not an object", ErrInvalidJSON)
	}

	oc, ok := root.member(KeyOC)
	if !ok {
		return reprFromResource(root)
	}
	if oc.kind != '[' || len(oc.elems) == 0 {
		return nil, fmt.Errorf("%w: %q must be a non-empty array", ErrInvalidJSON, KeyOC)
	}

	parent, err := reprFromResource(oc.elems[0])
	if err != nil {
		return nil, err
	}
	for _, elem := range oc.elems[1:] {
		child, err := reprFromResource(elem)
		if err != nil {
			parent.Release()
			return nil, err
		}
		err = parent.AppendChild(child)
		child.Release()
		if err != nil {
			parent.Release()
			return nil, err
		}
	}
	return parent, nil
}

// DecodeURIPath returns the href of the first resource in an envelope.
func DecodeURIPath(data []byte) (string, error) {
	root, err := parseJSON(data)
	if err != nil {
		return "", err
	}
	res := root
	if oc, ok := root.member(KeyOC); ok {
		if oc.kind != '[' || len(oc.elems) == 0 {
			return "", fmt.Errorf("%w: %q must be a non-empty array", ErrInvalidJSON, KeyOC)
		}
		res = oc.elems[0]
	}
	href, ok := res.member(KeyHref)
	if !ok {
		return "", fmt.Errorf("no %q member: %w", KeyHref, errcode.ErrNoData)
	}
	if href.kind != '"' {
		return "", fmt.Errorf("%w: %q is not a string", ErrInvalidJSON, KeyHref)
	}
	return href.text, nil
}

// DecodeProperty decodes a {"rt":[...],"if":[...]} object. Unknown interface
// strings are skipped.
func DecodeProperty(data []byte) (*model.ResourceTypes, model.Interface, error) {
	root, err := parseJSON(data)
	if err != nil {
		return nil, model.InterfaceNone, err
	}
	return propertyFromNode(root)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// jsonWriter wraps a jsontext.Encoder and keeps the first error.
type jsonWriter struct {
	enc *jsontext.Encoder
	err error
}

func writeJSON(fn func(w *jsonWriter)) ([]byte, error) {
	var buf bytes.Buffer
	w := &jsonWriter{enc: jsontext.NewEncoder(&buf)}
	fn(w)
	if w.err != nil {
		return nil, w.err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (w *jsonWriter) token(t jsontext.Token) {
	if w.err == nil {
		w.err = w.enc.WriteToken(t)
	}
}

func (w *jsonWriter) raw(v string) {
	if w.err == nil {
		w.err = w.enc.WriteValue(jsontext.Value(v))
	}
}

func (w *jsonWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *jsonWriter) name(s string) {
	w.token(jsontext.String(s))
}

func (w *jsonWriter) strings(ss []string) {
	w.token(jsontext.BeginArray)
	for _, s := range ss {
		w.token(jsontext.String(s))
	}
	w.token(jsontext.EndArray)
}

// writeRep writes {"rep":{...}} or {}.
func (w *jsonWriter) writeRep(r *model.Representation) {
	w.token(jsontext.BeginObject)
	if r.Len() > 0 {
		w.name(KeyRep)
		w.writeAttributes(r)
	}
	w.token(jsontext.EndObject)
}

func (w *jsonWriter) writeAttributes(r *model.Representation) {
	w.token(jsontext.BeginObject)
	for key, v := range r.All() {
		w.name(key)
		w.writeValue(v)
	}
	w.token(jsontext.EndObject)
}

func (w *jsonWriter) writeValue(v model.Value) {
	switch v.Kind() {
	case model.KindInt:
		n, _ := v.Int()
		w.token(jsontext.Int(n))
	case model.KindBool:
		b, _ := v.Bool()
		w.token(jsontext.Bool(b))
	case model.KindDouble:
		d, _ := v.Double()
		s, err := formatDouble(d)
		if err != nil {
			w.fail(err)
			return
		}
		w.raw(s)
	case model.KindStr:
		s, _ := v.Str()
		w.token(jsontext.String(s))
	case model.KindNull:
		w.token(jsontext.Null)
	case model.KindList:
		l, _ := v.List()
		w.token(jsontext.BeginArray)
		for _, elem := range l.All() {
			w.writeValue(elem)
		}
		w.token(jsontext.EndArray)
	case model.KindRepr:
		r, _ := v.Repr()
		w.writeRep(r)
	default:
		w.fail(fmt.Errorf("encode %s value: %w", v.Kind(), errcode.ErrInvalidParameter))
	}
}

// writeResource writes one element of the "oc" array.
func (w *jsonWriter) writeResource(r *model.Representation) {
	w.token(jsontext.BeginObject)
	if uri := r.URIPath(); uri != "" {
		w.name(KeyHref)
		w.token(jsontext.String(uri))
	}
	if r.Len() > 0 {
		w.name(KeyRep)
		w.writeAttributes(r)
	}
	types := r.ResourceTypes().Slice()
	ifaces := r.Interfaces().Strings()
	if len(types) > 0 || len(ifaces) > 0 {
		w.name(KeyProperty)
		w.token(jsontext.BeginObject)
		if len(types) > 0 {
			w.name(KeyResourceTypes)
			w.strings(types)
		}
		if len(ifaces) > 0 {
			w.name(KeyInterfaces)
			w.strings(ifaces)
		}
		w.token(jsontext.EndObject)
	}
	w.token(jsontext.EndObject)
}

// formatDouble renders d so that it always reads back as a double.
func formatDouble(d float64) (string, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return "", fmt.Errorf("encode double %v: %w", d, errcode.ErrInvalidParameter)
	}
	s := strconv.FormatFloat(d, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// node is a parsed JSON value that keeps object member order.
type node struct {
	kind    jsontext.Kind
	text    string
	b       bool
	members []member
	elems   []node
}

type member struct {
	name  string
	value node
}

func (n node) member(name string) (node, bool) {
	for _, m := range n.members {
		if m.name == name {
			return m.value, true
		}
	}
	return node{}, false
}

func parseJSON(data []byte) (node, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	n, err := readNode(dec)
	if err != nil {
		return node{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.ReadToken(); !errors.Is(err, io.EOF) {
		return node{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return n, nil
}

func readNode(dec *jsontext.Decoder) (node, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return node{}, err
	}

	switch k := tok.Kind(); k {
	case 'n':
		return node{kind: k}, nil
	case 't', 'f':
		return node{kind: k, b: tok.Bool()}, nil
	case '"', '0':
		return node{kind: k, text: tok.String()}, nil
	case '{':
		n := node{kind: k}
		for dec.PeekKind() != '}' {
			tok, err := dec.ReadToken()
			if err != nil {
				return node{}, err
			}
			// The token is voided by the next decoder call.
			name := tok.String()
			value, err := readNode(dec)
			if err != nil {
				return node{}, err
			}
			n.members = append(n.members, member{name: name, value: value})
		}
		if _, err := dec.ReadToken(); err != nil {
			return node{}, err
		}
		return n, nil
	case '[':
		n := node{kind: k}
		for dec.PeekKind() != ']' {
			elem, err := readNode(dec)
			if err != nil {
				return node{}, err
			}
			n.elems = append(n.elems, elem)
		}
		if _, err := dec.ReadToken(); err != nil {
			return node{}, err
		}
		return n, nil
	default:
		return node{}, fmt.Errorf("unexpected token %v", k)
	}
}

// reprFromRepObject builds a representation from {"rep":{...}}.
func reprFromRepObject(n node) (*model.Representation, error) {
	if n.kind != '{' {
		return nil, fmt.Errorf("%w: expected object, found %v", ErrInvalidJSON, n.kind)
	}
	r := model.New()
	rep, ok := n.member(KeyRep)
	if !ok {
		return r, nil
	}
	if err := fillAttributes(r, rep); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

// reprFromResource builds a representation from one "oc" element.
func reprFromResource(n node) (*model.Representation, error) {
	r, err := reprFromRepObject(n)
	if err != nil {
		return nil, err
	}

	if href, ok := n.member(KeyHref); ok {
		if href.kind != '"' {
			r.Release()
			return nil, fmt.Errorf("%w: %q is not a string", ErrInvalidJSON, KeyHref)
		}
		if err := r.SetURIPath(href.text); err != nil {
			r.Release()
			return nil, err
		}
	}

	if prop, ok := n.member(KeyProperty); ok {
		types, ifaces, err := propertyFromNode(prop)
		if err != nil {
			r.Release()
			return nil, err
		}
		if types != nil {
			r.SetResourceTypes(types)
			types.Release()
		}
		r.SetInterfaces(ifaces)
	}
	return r, nil
}

func fillAttributes(r *model.Representation, obj node) error {
	if obj.kind != '{' {
		return fmt.Errorf("%w: %q is not an object", ErrInvalidJSON, KeyRep)
	}
	for _, m := range obj.members {
		v, err := valueFromNode(m.value)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", m.name, err)
		}
		if err := r.Set(m.name, v); err != nil {
			releaseValue(v)
			return err
		}
	}
	return nil
}

func valueFromNode(n node) (model.Value, error) {
	switch n.kind {
	case 'n':
		return model.NewNull(), nil
	case 't', 'f':
		return model.NewBool(n.b), nil
	case '"':
		return model.NewStr(n.text), nil
	case '0':
		return numberValue(n.text)
	case '[':
		l, err := listFromNode(n)
		if err != nil {
			return model.Value{}, err
		}
		return model.NewListValue(l)
	case '{':
		r, err := reprFromRepObject(n)
		if err != nil {
			return model.Value{}, err
		}
		v, err := model.NewReprValue(r)
		r.Release()
		return v, err
	default:
		return model.Value{}, fmt.Errorf("%w: unsupported node %v", ErrInvalidJSON, n.kind)
	}
}

func numberValue(text string) (model.Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return model.NewInt(i), nil
		}
	}
	d, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: number %s: %v", ErrInvalidJSON, text, err)
	}
	return model.NewDouble(d), nil
}

func listFromNode(n node) (*model.List, error) {
	l, err := model.NewList(model.KindNone)
	if err != nil {
		return nil, err
	}
	for i, elem := range n.elems {
		v, err := valueFromNode(elem)
		if err != nil {
			l.Release()
			return nil, err
		}
		if err := l.Append(v); err != nil {
			releaseValue(v)
			l.Release()
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidJSON, i, err)
		}
	}
	return l, nil
}

func propertyFromNode(n node) (*model.ResourceTypes, model.Interface, error) {
	if n.kind != '{' {
		return nil, model.InterfaceNone, fmt.Errorf("%w: %q is not an object", ErrInvalidJSON, KeyProperty)
	}

	var types *model.ResourceTypes
	if rt, ok := n.member(KeyResourceTypes); ok {
		names, err := stringArray(rt, KeyResourceTypes)
		if err != nil {
			return nil, model.InterfaceNone, err
		}
		types, _ = model.NewResourceTypes()
		for _, name := range names {
			if err := types.Insert(name); err != nil && !errors.Is(err, errcode.ErrAlready) {
				types.Release()
				return nil, model.InterfaceNone, err
			}
		}
	}

	ifaces := model.InterfaceNone
	if ifNode, ok := n.member(KeyInterfaces); ok {
		names, err := stringArray(ifNode, KeyInterfaces)
		if err != nil {
			types.Release()
			return nil, model.InterfaceNone, err
		}
		for _, name := range names {
			if flag, ok := model.InterfaceFromString(name); ok {
				ifaces |= flag
			}
		}
	}
	return types, ifaces, nil
}

func stringArray(n node, key string) ([]string, error) {
	if n.kind != '[' {
		return nil, fmt.Errorf("%w: %q is not an array", ErrInvalidJSON, key)
	}
	out := make([]string, 0, len(n.elems))
	for _, e := range n.elems {
		if e.kind != '"' {
			return nil, fmt.Errorf("%w: %q holds a non-string", ErrInvalidJSON, key)
		}
		out = append(out, e.text)
	}
	return out, nil
}

func releaseValue(v model.Value) {
	if l, ok := v.List(); ok {
		l.Release()
	}
	if r, ok := v.Repr(); ok {
		r.Release()
	}
}
