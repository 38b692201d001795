package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanner(t *testing.T) {
	t.Parallel()

	out := Banner("task t-1\nCREATED", 12, AlignCenter)
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "╒══════════╕", lines[0])
	assert.Equal(t, "│ task t-1 │", lines[1])
	assert.Equal(t, "│ CREATED  │", lines[2])
	assert.Equal(t, "└──────────┘", lines[3])

	assert.Equal(t, "│abcdefghi…│", strings.Split(Banner("abcdefghijklmnop", 12, AlignLeft), "\n")[1])
	assert.Equal(t, "│        ok│", strings.Split(Banner("ok", 12, AlignRight), "\n")[1])
	assert.Empty(t, Banner("x", 2, AlignLeft))
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		in      string
		want    any
		wantErr bool
	}{
		{typ: "string", in: "hello", want: "hello"},
		{typ: "integer", in: "42", want: int64(42)},
		{typ: "integer", in: "4.2", wantErr: true},
		{typ: "number", in: "0.5", want: 0.5},
		{typ: "boolean", in: "true", want: true},
		{typ: "boolean", in: "maybe", wantErr: true},
		{typ: "array", in: `[{"label":"cat"}]`, want: []any{map[string]any{"label": "cat"}}},
		{typ: "object", in: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseValue(tt.typ, tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
