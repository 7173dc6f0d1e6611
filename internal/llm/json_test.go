package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{name: "bare object", response: `{"a":1}`, want: `{"a":1}`},
		{name: "whitespace", response: "\n  {\"a\":1}\n", want: `{"a":1}`},
		{name: "code fence", response: "```json\n{\"a\":{\"b\":[1,2]}}\n```", want: `{"a":{"b":[1,2]}}`},
		{name: "prose around", response: `Here you go: {"a":"x"} hope it helps {"b":2}`, want: `{"a":"x"}`},
		{name: "braces inside strings", response: `note {"why":"use } and { freely","q":"\"}"}`, want: `{"why":"use } and { freely","q":"\"}"}`},
		{name: "no object", response: "sorry, I cannot", wantErr: true},
		{name: "unterminated", response: `{"a":{"b":1}`, wantErr: true},
		{name: "array only", response: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := extractObject(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestSchemaInstruction(t *testing.T) {
	t.Parallel()

	plain, err := schemaInstruction(nil)
	require.NoError(t, err)
	require.NotContains(t, plain, "schema")

	withSchema, err := schemaInstruction(map[string]any{"type": "object", "required": []string{"tickets"}})
	require.NoError(t, err)
	require.Contains(t, withSchema, `"tickets"`)
	require.Contains(t, withSchema, "JSON schema")
}
