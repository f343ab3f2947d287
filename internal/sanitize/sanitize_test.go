package sanitize_test

import (
	"encoding/json"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/sanitize"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestRules(t *testing.T) {
	fixtures := map[string][]struct {
		in   string
		want string
	}{
		"trailing-commas": {
			{in: `{"a": 1,}`, want: `{"a": 1}`},
			{in: `{"a": [1, 2, ]}`, want: `{"a": [1, 2 ]}`},
			{in: "{\"a\": {\"b\": 1,\n}\n,}", want: "{\"a\": {\"b\": 1\n}\n}"},
			{in: `{"a": 1}`, want: `{"a": 1}`},
			{in: `{"tags": ["a", "b",,], "x": 1,,}`, want: `{"tags": ["a", "b"], "x": 1}`},
			{in: `{"a": [1,,2]}`, want: `{"a": [1,,2]}`},
			{in: `{"hint": "Check the list [a, b, ]", "n": {"m": "x,}"},}`, want: `{"hint": "Check the list [a, b, ]", "n": {"m": "x,}"}}`},
			{in: `{"q": "say \"hi,\"]", "r": 2,}`, want: `{"q": "say \"hi,\"]", "r": 2}`},
		},
		"control-characters": {
			{in: "{\"a\": \"line one\nline two\"}", want: `{"a": "line one\nline two"}`},
			{in: "{\"a\": \"col\tcol\r\"}", want: `{"a": "col\tcol\r"}`},
			{in: "{\n\t\"a\": \"b\"\n}", want: "{\n\t\"a\": \"b\"\n}"},
			{in: "{\"a\": \"bell\a and nul\x00\"}", want: `{"a": "bell and nul"}`},
			{in: `{"a": "quote \" then` + "\n" + `newline"}`, want: `{"a": "quote \" then\nnewline"}`},
		},
		"missing-commas": {
			{in: `{"a": ["x" "y"]}`, want: `{"a": ["x", "y"]}`},
			{in: "{\"a\": [\"x\"\n  \"y\"]}", want: "{\"a\": [\"x\",\n  \"y\"]}"},
			{in: `{"a": "x", "b": "y"}`, want: `{"a": "x", "b": "y"}`},
			// Known false positive: a whitespace-only value gets a comma.
			{in: `{"a": " "}`, want: `{"a": ", "}`},
		},
	}

	rules := sanitize.Rules()
	require.Len(t, rules, len(fixtures))
	require.Equal(t, "trailing-commas", rules[0].Name)
	require.Equal(t, "control-characters", rules[1].Name)
	require.Equal(t, "missing-commas", rules[2].Name)

	for _, rule := range rules {
		t.Run(rule.Name, func(t *testing.T) {
			cases, ok := fixtures[rule.Name]
			require.True(t, ok, "no fixtures for rule")
			for _, tt := range cases {
				got := rule.Apply(tt.in)
				require.Equal(t, tt.want, got)
				require.Equal(t, got, rule.Apply(got), "rule must be idempotent")
			}
		})
	}

	t.Run("idempotent on every fixture", func(t *testing.T) {
		for _, cases := range fixtures {
			for _, tt := range cases {
				for _, rule := range rules {
					once := rule.Apply(tt.in)
					require.Equal(t, once, rule.Apply(once), "%s on %q", rule.Name, tt.in)
				}
			}
		}
	})
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "plain object",
			raw:  `{"nodes": []}`,
			want: `{"nodes": []}`,
		},
		{
			name: "fenced with prose",
			raw:  "Here is your case:\n```json\n{\"nodes\": [1]}\n```\nEnjoy!",
			want: `{"nodes": [1]}`,
		},
		{
			name: "fence markers in the middle",
			raw:  "{\"a\": 1, ```\"b\": 2}",
			want: `{"a": 1, "b": 2}`,
		},
		{
			name:    "prose only",
			raw:     "I am sorry, I cannot produce that case.",
			wantErr: sanitize.ErrResponseFormat,
		},
		{
			name:    "closing brace before opening brace",
			raw:     "} nothing here {",
			wantErr: sanitize.ErrResponseFormat,
		},
		{
			name: "repeated trailing commas",
			raw:  "```json\n{\"tags\": [\"a\", \"b\",,]}\n```",
			want: `{"tags": ["a", "b"]}`,
		},
		{
			name: "brackets inside strings are kept",
			raw:  `{"hint": "Check the list [a, b, ]",}`,
			want: `{"hint": "Check the list [a, b, ]"}`,
		},
		{
			name:    "unrepairable",
			raw:     `{"nodes": [1, 2}`,
			wantErr: sanitize.ErrJSONRepair,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitize.Sanitize(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_idempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"nodes\": [{\"id\": \"start\", \"type\": \"story\"}], \"edges\": []}\n```",
		"```\n{\"a\": {\"b\": [1, 2, 3]}, \"c\": \"text with spaces\"}\n```",
		`{"empty": {}, "list": [], "nested": [[["deep"]]]}`,
	}
	for _, in := range inputs {
		once, err := sanitize.Sanitize(in)
		require.NoError(t, err)
		twice, err := sanitize.Sanitize(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestSanitize_repairRoundTrip(t *testing.T) {
	want := map[string]any{
		"title": "The missing ledger",
		"tags":  []any{"finance", "embezzlement"},
		"count": float64(2),
	}
	raw := "```json\n{\"title\": \"The missing ledger\", \"tags\": [\"finance\" \"embezzlement\"], \"count\": 2,}\n```"

	text, err := sanitize.Sanitize(raw)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Equal(t, want, got)
}

func TestSanitize_repairFailureCarriesExcerpt(t *testing.T) {
	raw := "{\"story\": \"" + strings.Repeat("a", 500) + "\", \"broken\" 1}"

	_, err := sanitize.Sanitize(raw)
	var repairErr *sanitize.JSONRepairFailure
	require.True(t, errors.As(err, &repairErr))
	require.Positive(t, repairErr.Offset)
	require.LessOrEqual(t, len(repairErr.Excerpt), 2*sanitize.ExcerptRadius)
	require.Contains(t, repairErr.Excerpt, "broken")
}
