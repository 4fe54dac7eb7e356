package interactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/model"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		text string
		kind model.Kind
	}{
		{"true", model.KindBool},
		{"false", model.KindBool},
		{"null", model.KindNull},
		{"42", model.KindInt},
		{"-7", model.KindInt},
		{"2.5", model.KindDouble},
		{"kitchen", model.KindStr},
		{`"42"`, model.KindStr},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.kind, parseValue(tt.text).Kind())
		})
	}
}

func TestParseAssignments(t *testing.T) {
	repr, err := parseAssignments([]string{"power=true", "level=3", `name="7"`})
	require.NoError(t, err)
	defer repr.Release()

	assert.Equal(t, []string{"power", "level", "name"}, repr.Keys())
	name, err := repr.GetStr("name")
	require.NoError(t, err)
	assert.Equal(t, "7", name)
	assert.JSONEq(t, `{"oc":[{"rep":{"power":true,"level":3,"name":"7"}}]}`, formatRepr(repr))

	_, err = parseAssignments([]string{"power"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery(nil)
	require.NoError(t, err)
	assert.Nil(t, q)

	q, err = parseQuery([]string{"if=oic.if.baseline"})
	require.NoError(t, err)
	v, ok := q.Lookup("if")
	assert.True(t, ok)
	assert.Equal(t, "oic.if.baseline", v)

	_, err = parseQuery([]string{"bad"})
	assert.Error(t, err)
}
