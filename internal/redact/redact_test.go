package redact_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/deckhand/internal/redact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestDocument_MasksMatchingKeys(t *testing.T) {
	r := redact.New(redact.DefaultPatterns...)

	out := r.Document(`{"command_name":"CMD-Deploy","data":{"db_password":"hunter2","nested":{"ApiToken":"abc"},"user":"app"}}`)

	m := decode(t, out)
	assert.Equal(t, "CMD-Deploy", m["command_name"])
	data := m["data"].(map[string]any)
	assert.Equal(t, redact.Mask, data["db_password"])
	assert.Equal(t, "app", data["user"])
	assert.Equal(t, redact.Mask, data["nested"].(map[string]any)["ApiToken"])
}

func TestDocument_MasksInsideStringPayloads(t *testing.T) {
	r := redact.New(redact.DefaultPatterns...)

	out := r.Document(`{"command_name":"CMD-Deploy","execution_data":"{\"secret\":\"s3\",\"keep\":1}"}`)

	m := decode(t, out)
	inner := decode(t, m["execution_data"].(string))
	assert.Equal(t, redact.Mask, inner["secret"])
	assert.Equal(t, 1.0, inner["keep"])
}

func TestDocument_ArraysOfObjects(t *testing.T) {
	r := redact.New(`(?i)secret`)

	out := r.Document(`{"items":[{"secret":"a"},{"name":"b"}]}`)

	items := decode(t, out)["items"].([]any)
	assert.Equal(t, redact.Mask, items[0].(map[string]any)["secret"])
	assert.Equal(t, "b", items[1].(map[string]any)["name"])
}

func TestDocument_Unchanged(t *testing.T) {
	r := redact.New(redact.DefaultPatterns...)

	tests := []struct {
		name string
		doc  string
	}{
		{"no sensitive keys", `{"command_name": "CMD-Deploy", "data": "plain"}`},
		{"not json", `command=CMD-Deploy password=x`},
		{"json array", `[{"password":"x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.doc, r.Document(tt.doc), "original formatting is kept when nothing is masked")
		})
	}
}

func TestDocument_NilRedactor(t *testing.T) {
	var r *redact.Redactor
	assert.Equal(t, `{"password":"x"}`, r.Document(`{"password":"x"}`))
}

func TestCompile_InvalidPattern(t *testing.T) {
	_, err := redact.Compile(`(`)
	assert.Error(t, err)

	r, err := redact.Compile(`(?i)pin`)
	require.NoError(t, err)
	assert.Contains(t, r.Document(`{"PIN":"1234"}`), redact.Mask)
}
