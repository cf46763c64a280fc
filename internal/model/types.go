package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// Known definition keys. Anything else lands in IndicatorDefinition.Extra.
const (
	FieldID          = "id"
	FieldDescription = "description"
	FieldDataSignals = "data_signals"
	FieldPIR         = "pir"
	FieldCOA         = "coa"
)

// IndicatorDefinition is one entry of the definitions document. Fields the
// service does not interpret are kept in Extra and written back verbatim.
type IndicatorDefinition struct {
	ID          string
	Description string
	DataSignals []string
	PIR         int
	COA         string
	Extra       map[string]any

	// source holds the recognised keys exactly as they appeared in the
	// document, null included. Nil for definitions built in code.
	source map[string]any
}

// Clone returns a copy that shares no slices or maps with d.
func (d IndicatorDefinition) Clone() IndicatorDefinition {
	out := d
	out.DataSignals = slices.Clone(d.DataSignals)
	out.Extra = maps.Clone(d.Extra)
	out.source = maps.Clone(d.source)
	return out
}

// DefinitionFromMap builds a definition from a decoded document object.
func DefinitionFromMap(fields map[string]any) (IndicatorDefinition, error) {
	var def IndicatorDefinition
	if fields == nil {
		return def, errors.New("definition is not an object")
	}
	for key, val := range fields {
		switch key {
		case FieldID, FieldDescription, FieldCOA, FieldPIR, FieldDataSignals:
			if def.source == nil {
				def.source = make(map[string]any, 5)
			}
			def.source[key] = normalize(val)
		}
		switch key {
		case FieldID:
			id, ok := scalarString(val)
			if !ok {
				return def, fmt.Errorf("%s must be a string, got %T", FieldID, val)
			}
			def.ID = id
		case FieldDescription:
			s, ok := optionalString(val)
			if !ok {
				return def, fmt.Errorf("%s must be a string, got %T", FieldDescription, val)
			}
			def.Description = s
		case FieldCOA:
			s, ok := optionalString(val)
			if !ok {
				return def, fmt.Errorf("%s must be a string, got %T", FieldCOA, val)
			}
			def.COA = s
		case FieldPIR:
			if val == nil {
				continue
			}
			n, ok := toInt(val)
			if !ok {
				return def, fmt.Errorf("%s must be an integer, got %v", FieldPIR, val)
			}
			def.PIR = n
		case FieldDataSignals:
			signals, err := toStrings(val)
			if err != nil {
				return def, err
			}
			def.DataSignals = signals
		default:
			if def.Extra == nil {
				def.Extra = make(map[string]any)
			}
			def.Extra[key] = normalize(val)
		}
	}
	if def.ID == "" {
		return def, errors.New("definition is missing id")
	}
	return def, nil
}

// Fields flattens the definition back into a document object. Definitions
// read from a document give back every key they were read with.
func (d IndicatorDefinition) Fields() map[string]any {
	out := make(map[string]any, len(d.Extra)+5)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.source != nil {
		for k, v := range d.source {
			out[k] = normalize(v)
		}
		return out
	}
	out[FieldID] = d.ID
	if d.Description != "" {
		out[FieldDescription] = d.Description
	}
	if d.DataSignals != nil {
		out[FieldDataSignals] = d.DataSignals
	}
	if d.PIR != 0 {
		out[FieldPIR] = d.PIR
	}
	if d.COA != "" {
		out[FieldCOA] = d.COA
	}
	return out
}

func (d IndicatorDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Fields())
}

func (d *IndicatorDefinition) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	def, err := DefinitionFromMap(fields)
	if err != nil {
		return err
	}
	*d = def
	return nil
}

type Event struct {
	IndicatorID string         `json:"indicator_id"`
	Payload     map[string]any `json:"payload"`
}

// Evaluation is either a match (Matched true, indicator fields set) or a miss
// carrying only Reason.
type Evaluation struct {
	Matched         bool
	IndicatorID     string
	Description     string
	Confidence      float64
	RecommendedTask string
	Reason          string
}

func Matched(def IndicatorDefinition, confidence float64, task string) Evaluation {
	return Evaluation{
		Matched:         true,
		IndicatorID:     def.ID,
		Description:     def.Description,
		Confidence:      confidence,
		RecommendedTask: task,
	}
}

func Unmatched(reason string) Evaluation {
	return Evaluation{Reason: reason}
}

type matchedJSON struct {
	Matched         bool    `json:"matched"`
	IndicatorID     string  `json:"indicator_id"`
	Description     string  `json:"description"`
	Confidence      float64 `json:"confidence"`
	RecommendedTask string  `json:"recommended_task"`
}

type unmatchedJSON struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

func (e Evaluation) MarshalJSON() ([]byte, error) {
	if !e.Matched {
		return json.Marshal(unmatchedJSON{Reason: e.Reason})
	}
	return json.Marshal(matchedJSON{
		Matched:         true,
		IndicatorID:     e.IndicatorID,
		Description:     e.Description,
		Confidence:      e.Confidence,
		RecommendedTask: e.RecommendedTask,
	})
}

func (e *Evaluation) UnmarshalJSON(data []byte) error {
	var raw struct {
		matchedJSON
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Evaluation{
		Matched:         raw.Matched,
		IndicatorID:     raw.IndicatorID,
		Description:     raw.Description,
		Confidence:      raw.Confidence,
		RecommendedTask: raw.RecommendedTask,
		Reason:          raw.Reason,
	}
	return nil
}

// EvaluationRecord is an entry of the in-memory evaluation history. Event
// payloads are not kept.
type EvaluationRecord struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Source      string     `json:"source"`
	IndicatorID string     `json:"indicator_id"`
	Evaluation  Evaluation `json:"evaluation"`
}

// normalize rewrites nested mappings with non-string keys, as produced by
// YAML documents like {1: low}, into map[string]any so they encode as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case int, int64, uint64, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

func optionalString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func toStrings(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %T", FieldDataSignals, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string, got %T", FieldDataSignals, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
