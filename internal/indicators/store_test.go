package indicators

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleYAML = `
indicators:
  - id: ind-1
    description: desc
    data_signals: [a, b, c]
    pir: 2
    coa: mdcoa
    region: east
  - id: ind-2
    description: second
    data_signals: []
    pir: 1
    coa: mlcoa
    sources:
      primary: ais
`

func TestParseYAML(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len: %d", s.Len())
	}
	def, ok := s.Lookup("ind-1")
	if !ok {
		t.Fatalf("ind-1 not found")
	}
	if def.Description != "desc" || def.PIR != 2 || def.COA != "mdcoa" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if !reflect.DeepEqual(def.DataSignals, []string{"a", "b", "c"}) {
		t.Fatalf("signals: %v", def.DataSignals)
	}
	if def.Extra["region"] != "east" {
		t.Fatalf("extra field lost: %v", def.Extra)
	}
	second, _ := s.Lookup("ind-2")
	nested, ok := second.Extra["sources"].(map[string]any)
	if !ok || nested["primary"] != "ais" {
		t.Fatalf("nested extra lost: %#v", second.Extra)
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{"indicators":[{"id":"j1","description":"json","data_signals":["x"],"pir":3,"coa":"mlcoa","weight":0.5}]}`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	def, ok := s.Lookup("j1")
	if !ok || def.PIR != 3 || def.Extra["weight"] != 0.5 {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestParseMissingListIsEmpty(t *testing.T) {
	for _, doc := range []string{"other: 1", "indicators:", `{"version": 2}`} {
		s, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", doc, err)
		}
		if s.Len() != 0 {
			t.Fatalf("%q: expected empty store", doc)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "   ",
		"not structured": "indicators: [unterminated",
		"scalar root":    "just a string",
		"list root":      "- id: a",
		"not a list":     "indicators: nope",
		"element scalar": "indicators:\n  - plain",
		"missing id":     "indicators:\n  - description: no id",
		"bad signals":    "indicators:\n  - id: a\n    data_signals: one",
		"bad pir":        "indicators:\n  - id: a\n    pir: high",
		"bad json":       `{"indicators": [}`,
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
	}
}

func TestParseErrorNamesElement(t *testing.T) {
	_, err := Parse([]byte("indicators:\n  - id: ok\n  - pir: 2"))
	if err == nil || !strings.Contains(err.Error(), "indicators[1]") {
		t.Fatalf("expected element index in error, got %v", err)
	}
}

func TestDuplicateIDLaterWins(t *testing.T) {
	doc := "indicators:\n  - id: a\n    description: first\n  - id: b\n  - id: a\n    description: second\n"
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].Description != "second" {
		t.Fatalf("expected later definition to win, got %q", list[0].Description)
	}
}

func TestLookupMissing(t *testing.T) {
	s, _ := Parse([]byte(sampleYAML))
	if _, ok := s.Lookup("nope"); ok {
		t.Fatalf("unexpected match")
	}
	if _, ok := s.Lookup(""); ok {
		t.Fatalf("unexpected match for empty id")
	}
}

func TestListRoundTrip(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	data, err := json.Marshal(s.List())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed) != 2 || listed[0]["id"] != "ind-1" || listed[1]["id"] != "ind-2" {
		t.Fatalf("ids changed: %v", listed)
	}
	if listed[0]["region"] != "east" || listed[0]["coa"] != "mdcoa" || listed[0]["pir"] != float64(2) {
		t.Fatalf("fields changed: %v", listed[0])
	}
}

func TestListKeepsZeroValuedFields(t *testing.T) {
	doc := `
indicators:
  - id: quiet
    description: ""
    data_signals: ~
    pir: 0
    coa: ""
`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	data, err := json.Marshal(s.List())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"id":           "quiet",
		"description":  "",
		"data_signals": nil,
		"pir":          float64(0),
		"coa":          "",
	}
	if len(listed) != 1 || !reflect.DeepEqual(listed[0], want) {
		t.Fatalf("fields changed: %#v", listed)
	}

	// Keys absent from the document stay absent.
	s, _ = Parse([]byte("indicators:\n  - id: bare\n"))
	data, _ = json.Marshal(s.List())
	if string(data) != `[{"id":"bare"}]` {
		t.Fatalf("unexpected listing: %s", data)
	}
}

func TestNonStringKeysEncode(t *testing.T) {
	doc := `
indicators:
  - id: levels
    levels:
      1: low
      2: high
    tiers:
      - {3: top}
`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	data, err := json.Marshal(s.List())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	levels, ok := listed[0]["levels"].(map[string]any)
	if !ok || levels["1"] != "low" || levels["2"] != "high" {
		t.Fatalf("levels lost: %#v", listed[0])
	}
	tiers, ok := listed[0]["tiers"].([]any)
	if !ok || len(tiers) != 1 || tiers[0].(map[string]any)["3"] != "top" {
		t.Fatalf("tiers lost: %#v", listed[0])
	}
}

func TestStoreIsNotMutatedThroughCopies(t *testing.T) {
	s, _ := Parse([]byte(sampleYAML))
	def, _ := s.Lookup("ind-1")
	def.DataSignals[0] = "changed"
	def.Extra["region"] = "west"
	again, _ := s.Lookup("ind-1")
	if again.DataSignals[0] != "a" || again.Extra["region"] != "east" {
		t.Fatalf("store mutated through lookup copy: %+v", again)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len: %d", s.Len())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadReader(t *testing.T) {
	s, err := Load(strings.NewReader(sampleYAML))
	if err != nil || s.Len() != 2 {
		t.Fatalf("load: %v", err)
	}
}
