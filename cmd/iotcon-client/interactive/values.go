package interactive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// parseAssignments builds a representation from key=value arguments.
// Values are typed by their text: true/false, null, integers, decimals,
// anything else is a string. Quote a value to force a string.
func parseAssignments(args []string) (*model.Representation, error) {
	repr := model.New()
	for _, arg := range args {
		key, text, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			repr.Release()
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if err := repr.Set(key, parseValue(text)); err != nil {
			repr.Release()
			return nil, err
		}
	}
	return repr, nil
}

func parseValue(text string) model.Value {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return model.NewStr(text[1 : len(text)-1])
	}
	switch text {
	case "true":
		return model.NewBool(true)
	case "false":
		return model.NewBool(false)
	case "null":
		return model.NewNull()
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return model.NewInt(i)
	}
	if d, err := strconv.ParseFloat(text, 64); err == nil {
		return model.NewDouble(d)
	}
	return model.NewStr(text)
}

// parseQuery builds a query from key=value arguments.
func parseQuery(args []string) (*model.Query, error) {
	if len(args) == 0 {
		return nil, nil
	}
	q := model.NewQuery()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if err := q.Insert(key, value); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// formatRepr renders repr as its JSON envelope.
func formatRepr(repr *model.Representation) string {
	if repr == nil {
		return "(empty)"
	}
	data, err := wire.EncodeRepresentation(repr)
	if err != nil {
		return fmt.Sprintf("(unprintable: %v)", err)
	}
	return string(data)
}
