package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/xeipuuv/gojsonschema"
)

// Stream is the registry entry for one Singer stream within a run
type Stream struct {
	Name          string
	Schema        json.RawMessage
	KeyProperties []string
	Validator     *gojsonschema.Schema

	// Header is captured from the first record and never recomputed
	Header []string
	Buffer [][]interface{}
}

func NewStream(name string) *Stream {
	return &Stream{Name: name}
}

// SetSchema registers a schema document. The document is kept even when it does not compile,
// in which case Validator is nil and the compile error is returned.
func (s *Stream) SetSchema(schema json.RawMessage, keyProperties []string) error {
	s.Schema = schema
	s.KeyProperties = keyProperties
	s.Validator = nil

	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return fmt.Errorf("error compiling schema for stream %s: %w", s.Name, err)
	}
	s.Validator = validator
	return nil
}

// Validate checks a record against the compiled schema
func (s *Stream) Validate(record json.RawMessage) (bool, error) {
	if s.Validator == nil {
		return true, nil
	}

	result, err := s.Validator.Validate(gojsonschema.NewBytesLoader(record))
	if err != nil {
		return false, fmt.Errorf("error validating record for stream %s: %w", s.Name, err)
	}
	if result.Valid() {
		return true, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return false, fmt.Errorf("%s", strings.Join(violations, "; "))
}

var errFound = errors.New("found")

// DateColumn returns the first schema property, in document order, whose format is "date"
func (s *Stream) DateColumn() (string, bool) {
	var column string
	err := jsonparser.ObjectEach(s.Schema, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.Object {
			return nil
		}
		if format, err := jsonparser.GetString(value, "format"); err == nil && format == "date" {
			column = string(key)
			return errFound
		}
		return nil
	}, "properties")

	if errors.Is(err, errFound) {
		return column, true
	}
	return "", false
}

func (s *Stream) Len() int {
	return len(s.Buffer)
}
