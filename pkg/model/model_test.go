package model

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

func TestInterfaceFlagsPriority(t *testing.T) {
	i := InterfaceGroup | InterfaceLink | InterfaceDefault

	assert.Equal(t, []Interface{InterfaceDefault, InterfaceLink, InterfaceGroup}, i.Flags())
	assert.Equal(t, []string{"oic.if.baseline", "oic.if.ll", "oc.mi.grp"}, i.Strings())
	assert.Equal(t, "DEFAULT|LINK|GROUP", i.String())
	assert.True(t, i.Valid())
	assert.False(t, InterfaceNone.Valid())
	assert.False(t, Interface(0x30).Valid())
}

func TestInterfaceFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Interface
		ok   bool
	}{
		{"oic.if.baseline", InterfaceDefault, true},
		{"oic.if.ll", InterfaceLink, true},
		{"oic.if.b", InterfaceBatch, true},
		{"oc.mi.grp", InterfaceGroup, true},
		{"oic.if.r", InterfaceNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := InterfaceFromString(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}

	got, ok := InterfaceFromLabel("batch")
	assert.True(t, ok)
	assert.Equal(t, InterfaceBatch, got)
}

func TestInterfaceName(t *testing.T) {
	name, ok := InterfaceBatch.Name()
	assert.True(t, ok)
	assert.Equal(t, InterfaceBatchName, name)

	_, ok = (InterfaceBatch | InterfaceLink).Name()
	assert.False(t, ok)
}

func TestPropertyString(t *testing.T) {
	assert.Equal(t, "-", PropertyHidden.String())
	p := PropertyActive | PropertyDiscoverable | PropertyObservable
	assert.Equal(t, "ADO", p.String())
	assert.True(t, p.IsObservable())
	assert.False(t, p.IsSecure())
}

func TestResourceTypes(t *testing.T) {
	rt, err := NewResourceTypes("core.light", "core.brightlight")
	require.NoError(t, err)
	defer rt.Release()

	assert.Equal(t, 2, rt.Len())
	assert.True(t, rt.Contains("core.light"))
	assert.ErrorIs(t, rt.Insert("core.light"), errcode.ErrAlready)
	assert.ErrorIs(t, rt.Insert(""), errcode.ErrInvalidParameter)

	long := string(slices.Repeat([]byte("a"), MaxResourceTypeLength+1))
	assert.ErrorIs(t, rt.Insert(long), errcode.ErrInvalidParameter)

	assert.ErrorIs(t, rt.Delete("core.fan"), errcode.ErrNoData)
	require.NoError(t, rt.Delete("core.brightlight"))
	assert.Equal(t, []string{"core.light"}, rt.Slice())
}

func TestResourceTypesSharedIsFrozen(t *testing.T) {
	rt, err := NewResourceTypes("core.light")
	require.NoError(t, err)

	r := New()
	r.SetResourceTypes(rt)
	assert.Equal(t, 2, rt.RefCount())

	err = rt.Insert("core.fan")
	assert.True(t, errors.Is(err, errcode.ErrInvalidParameter))

	r.Release()
	assert.Equal(t, 1, rt.RefCount())
	assert.NoError(t, rt.Insert("core.fan"))
	rt.Release()
}

func TestHeaderOptions(t *testing.T) {
	opts := NewHeaderOptions()

	require.NoError(t, opts.Insert(2048, "min"))
	require.NoError(t, opts.Insert(3000, "max"))
	assert.ErrorIs(t, opts.Insert(2047, "low"), errcode.ErrInvalidParameter)
	assert.ErrorIs(t, opts.Insert(3001, "high"), errcode.ErrInvalidParameter)
	assert.ErrorIs(t, opts.Insert(2048, "dup"), errcode.ErrAlready)
	assert.ErrorIs(t, opts.Insert(2500, "this value is far too long"), errcode.ErrInvalidParameter)

	v, ok := opts.Lookup(3000)
	assert.True(t, ok)
	assert.Equal(t, "max", v)
	assert.Equal(t, 2, opts.Len())

	require.NoError(t, opts.Delete(2048))
	assert.ErrorIs(t, opts.Delete(2048), errcode.ErrNoData)
	assert.Equal(t, []HeaderOption{{ID: 3000, Value: "max"}}, opts.Slice())
}

func TestQueryEncode(t *testing.T) {
	q := NewQuery()
	assert.Equal(t, "", q.Encode())

	require.NoError(t, q.Insert("if", "oic.if.b"))
	require.NoError(t, q.Insert("rt", "core.light"))
	require.NoError(t, q.Insert("if", "oic.if.ll"))
	assert.ErrorIs(t, q.Insert("", "x"), errcode.ErrInvalidParameter)

	assert.Equal(t, "?if=oic.if.ll&rt=core.light", q.Encode())

	v, ok := q.Lookup("rt")
	assert.True(t, ok)
	assert.Equal(t, "core.light", v)

	require.NoError(t, q.Delete("if"))
	assert.Equal(t, "?rt=core.light", q.Encode())
	assert.ErrorIs(t, q.Delete("if"), errcode.ErrNoData)
}

func TestValueAccessors(t *testing.T) {
	v := NewDouble(1.5)
	assert.Equal(t, KindDouble, v.Kind())

	d, ok := v.Double()
	assert.True(t, ok)
	assert.Equal(t, 1.5, d)

	_, ok = v.Int()
	assert.False(t, ok)

	assert.Equal(t, `"x"`, NewStr("x").String())
	assert.Equal(t, "null", NewNull().String())
	assert.Equal(t, "none", Value{}.String())
}
