package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionalFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "numbers placeholders in order",
			in:   `SELECT * FROM "t" WHERE a = ? AND b = ?`,
			want: `SELECT * FROM "t" WHERE a = ?1 AND b = ?2`,
		},
		{
			name: "no placeholders",
			in:   `SELECT * FROM "t"`,
			want: `SELECT * FROM "t"`,
		},
		{
			name: "doubled question mark escapes",
			in:   `SELECT a ?? b FROM "t" WHERE c = ?`,
			want: `SELECT a ? b FROM "t" WHERE c = ?1`,
		},
	}

	format := SQLite.PlaceholderFormat()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := format.ReplacePlaceholders(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
