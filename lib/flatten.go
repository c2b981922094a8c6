package lib

import (
	"encoding/json"
	"fmt"
		"strings"
	"unicode"

	"github.com/5amCurfew/xtkt-target/util"
	"github.com/buger/jsonparser"
)

const DefaultSeparator = "__"

// FlatRecord is a single-level record whose keys keep first-seen, depth-first order
type FlatRecord struct {
	Keys   []string
	Values []interface{}
	index  map[string]int
}

func newFlatRecord() *FlatRecord {
	return &FlatRecord{index: map[string]int{}}
}

func (r *FlatRecord) set(key string, value interface{}) {
	if i, ok := r.index[key]; ok {
		r.Values[i] = value
		return
	}
	r.index[key] = len(r.Keys)
	r.Keys = append(r.Keys, key)
	r.Values = append(r.Values, value)
}

func (r *FlatRecord) get(key string) (interface{}, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

// Flatten collapses a nested JSON object into one level, joining nested keys with sep.
// Sequences become their Python-style text form, e.g. [1, 2] or ['a', None].
// Strings, numbers (as json.Number), booleans and null are kept as they are.
func Flatten(record []byte, sep string) (*FlatRecord, error) {
	flat := newFlatRecord()
	if err := flattenInto(flat, record, "", sep); err != nil {
		return nil, fmt.Errorf("error flattening record: %w", err)
	}
	return flat, nil
}

func flattenInto(flat *FlatRecord, data []byte, parent string, sep string) error {
	return jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		name := string(key)
		if parent != "" {
			name = parent + sep + name
		}

		switch dataType {
		case jsonparser.Object:
			return flattenInto(flat, value, name, sep)
		case jsonparser.Array:
			repr, err := pyRepr(value, dataType)
			if err != nil {
				return err
			}
			flat.set(name, repr)
		default:
			leaf, err := scalar(value, dataType)
			if err != nil {
				return err
			}
			flat.set(name, leaf)
		}
		return nil
	})
}

func scalar(value []byte, dataType jsonparser.ValueType) (interface{}, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		return json.Number(value), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected value %s", string(value))
	}
}

func pyRepr(value []byte, dataType jsonparser.ValueType) (string, error) {
	var b strings.Builder
	if err := writeRepr(&b, value, dataType); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeRepr(b *strings.Builder, value []byte, dataType jsonparser.ValueType) error {
	switch dataType {
	case jsonparser.Array:
		b.WriteByte('[')
		first := true
		var inner error
		_, err := jsonparser.ArrayEach(value, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
			if inner != nil {
				return
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			inner = writeRepr(b, item, itemType)
		})
		if err != nil {
			return err
		}
		if inner != nil {
			return inner
		}
		b.WriteByte(']')
	case jsonparser.Object:
		b.WriteByte('{')
		first := true
		err := jsonparser.ObjectEach(value, func(key []byte, item []byte, itemType jsonparser.ValueType, _ int) error {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(pyQuote(string(key)))
			b.WriteString(": ")
			return writeRepr(b, item, itemType)
		})
		if err != nil {
			return err
		}
		b.WriteByte('}')
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return err
		}
		b.WriteString(pyQuote(s))
	case jsonparser.Number:
		b.WriteString(util.PyNumber(string(value)))
	case jsonparser.Boolean:
		if string(value) == "true" {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case jsonparser.Null:
		b.WriteString("None")
	default:
		return fmt.Errorf("unexpected value %s", string(value))
	}
	return nil
}

func pyQuote(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == quote:
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r <= 0xffff:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}
