// Package indicators loads the indicator definitions document and serves
// id-keyed lookups. A Store is immutable once built, so any number of
// goroutines may read it without locking.
package indicators

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"osintwarn/internal/model"
)

// ParseError reports a definitions document that could not be decoded.
type ParseError struct {
	Source string
	Index  int // -1 when the failure is not tied to one element
	Err    error
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "indicator definitions"
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s: indicators[%d]: %v", src, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", src, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type Store struct {
	byID  map[string]model.IndicatorDefinition
	order []string
}

// New builds a store from already decoded definitions. A later definition
// with a repeated id replaces the earlier one but keeps its position.
func New(defs []model.IndicatorDefinition) *Store {
	s := &Store{byID: make(map[string]model.IndicatorDefinition, len(defs))}
	for _, def := range defs {
		if _, ok := s.byID[def.ID]; !ok {
			s.order = append(s.order, def.ID)
		}
		s.byID[def.ID] = def.Clone()
	}
	return s
}

type document struct {
	Indicators []map[string]any `json:"indicators" yaml:"indicators"`
}

// Parse decodes a YAML or JSON definitions document.
func Parse(data []byte) (*Store, error) {
	return parse("", data)
}

func Load(r io.Reader) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read indicator definitions: %w", err)
	}
	return Parse(data)
}

func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicator definitions: %w", err)
	}
	return parse(path, data)
}

func parse(source string, data []byte) (*Store, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Source: source, Index: -1, Err: errors.New("document is empty")}
	}
	var doc document
	var err error
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &doc)
	} else {
		err = yaml.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return nil, &ParseError{Source: source, Index: -1, Err: err}
	}
	defs := make([]model.IndicatorDefinition, 0, len(doc.Indicators))
	for i, fields := range doc.Indicators {
		def, err := model.DefinitionFromMap(fields)
		if err != nil {
			return nil, &ParseError{Source: source, Index: i, Err: err}
		}
		defs = append(defs, def)
	}
	return New(defs), nil
}

// Lookup returns the definition for id. A missing id is not an error.
func (s *Store) Lookup(id string) (model.IndicatorDefinition, bool) {
	def, ok := s.byID[id]
	if !ok {
		return model.IndicatorDefinition{}, false
	}
	return def.Clone(), true
}

// List returns every definition in document order.
func (s *Store) List() []model.IndicatorDefinition {
	out := make([]model.IndicatorDefinition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	return len(s.order)
}
