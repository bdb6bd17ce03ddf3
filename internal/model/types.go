/*
PURPOSE:
  Defines the core data structures shared by the proxy.
  These models represent the flattened audit report and the response envelope.

REQUIREMENTS:
  User-specified:
  - Every extraction produces label/value pairs.
  - Four sections: overview, statistics, ruleResults, opportunities.
  - Uniform envelope: code 0 on success, code 1 on failure.

  Implementation-discovered:
  - Sections must serialize as JSON objects in insertion order.
  - A repeated label overwrites the earlier value but keeps its position.

ARCHITECTURE INTEGRATION:
  - Used by: internal/report, internal/engine, internal/output, internal/server
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - No dependency on the upstream schema here.

USAGE:
  var s model.Section
  s.Set("URL", "example.com")

RELATED FILES:
  - internal/report/transform.go
  - internal/output/json.go

MAINTENANCE:
  - Update when the response contract changes.
*/

package model

import (
	"bytes"
	"encoding/json"
)

// Envelope codes.
const (
	CodeOK    = 0
	CodeError = 1
)

// Error kinds reported in ErrorDetail.Kind. Validation failures carry no detail.
const (
	KindTransport = "transport"
	KindParse     = "parse"
	KindUpstream  = "upstream"
	KindInternal  = "internal"
)

// LabelValue is a single display row produced by the report transformer.
type LabelValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section is an ordered label -> value mapping.
type Section struct {
	entries []LabelValue
	index   map[string]int
}

// Set stores value under label. An existing label keeps its position.
func (s *Section) Set(label, value string) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[label]; ok {
		s.entries[i].Value = value
		return
	}
	s.index[label] = len(s.entries)
	s.entries = append(s.entries, LabelValue{Label: label, Value: value})
}

// Get returns the value stored under label.
func (s Section) Get(label string) (string, bool) {
	i, ok := s.index[label]
	if !ok {
		return "", false
	}
	return s.entries[i].Value, true
}

// Len returns the number of distinct labels.
func (s Section) Len() int { return len(s.entries) }

// Entries returns a copy of the rows in insertion order.
func (s Section) Entries() []LabelValue {
	out := make([]LabelValue, len(s.entries))
	copy(out, s.entries)
	return out
}

// MarshalJSON encodes the section as a JSON object, preserving order.
func (s Section) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FlattenedReport is the display-friendly summary returned by /psi.
type FlattenedReport struct {
	Overview      Section `json:"overview"`
	Statistics    Section `json:"statistics"`
	RuleResults   Section `json:"ruleResults"`
	Opportunities Section `json:"opportunities"`
}

// Envelope is the body of every /psi response.
type Envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorDetail is the structured data attached to a failure envelope.
type ErrorDetail struct {
	Kind     string          `json:"kind"`
	Cause    string          `json:"cause,omitempty"`
	Status   int             `json:"status,omitempty"`
	Upstream *UpstreamStatus `json:"upstream,omitempty"`
}

// UpstreamStatus mirrors the error document returned by the auditing API.
type UpstreamStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
