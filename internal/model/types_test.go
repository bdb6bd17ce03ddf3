package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionMarshalKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	var s Section
	s.Set("URL", "example.com")
	s.Set("Strategy", "mobile")
	s.Set("Performance", "87")

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"URL":"example.com","Strategy":"mobile","Performance":"87"}`, string(b))
}

func TestSectionOverwriteKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	var s Section
	s.Set("a", "1")
	s.Set("b", "2")
	s.Set("a", "3")

	assert.Equal(t, 2, s.Len())
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Equal(t, []LabelValue{{Label: "a", Value: "3"}, {Label: "b", Value: "2"}}, s.Entries())
}

func TestEmptySectionMarshalsAsObject(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(FlattenedReport{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"overview":{},"statistics":{},"ruleResults":{},"opportunities":{}}`, string(b))
}

func TestEnvelopeOmitsMessageOnSuccess(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Envelope{Code: CodeOK, Data: map[string]int{"x": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":0,"data":{"x":1}}`, string(b))

	b, err = json.Marshal(Envelope{Code: CodeError, Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":1,"message":"boom"}`, string(b))
}
