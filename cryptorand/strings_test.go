package cryptorand_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/chalkboard/chalkboard/cryptorand"
)

func TestString(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		rs, err := cryptorand.String(10)
		require.NoError(t, err, "unexpected error from String")
		require.Len(t, rs, 10)
	}

	// Collisions at this length would mean something is badly broken.
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		rs, err := cryptorand.String(20)
		require.NoError(t, err)
		_, dup := seen[rs]
		require.False(t, dup, "duplicate random string %q", rs)
		seen[rs] = struct{}{}
	}
}

func TestStringCharset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		Name    string
		Charset string
		Length  int
	}{
		{
			Name:    "Empty",
			Charset: cryptorand.Default,
			Length:  0,
		},
		{
			Name:    "Numeric",
			Charset: cryptorand.Numeric,
			Length:  1,
		},
		{
			Name:    "Upper",
			Charset: cryptorand.Upper,
			Length:  3,
		},
		{
			Name:    "Lower",
			Charset: cryptorand.Lower,
			Length:  10,
		},
		{
			Name:    "Alpha",
			Charset: cryptorand.Alpha,
			Length:  20,
		},
		{
			Name:    "Default",
			Charset: cryptorand.Default,
			Length:  10,
		},
		{
			Name:    "Human",
			Charset: cryptorand.Human,
			Length:  8,
		},
		{
			Name:    "MultiByte",
			Charset: "ŧǣmpȱrǽl",
			Length:  12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			t.Parallel()

			rs, err := cryptorand.StringCharset(tt.Charset, tt.Length)
			require.NoError(t, err)
			require.Equal(t, tt.Length, utf8.RuneCountInString(rs))
			for _, c := range rs {
				require.True(t, strings.ContainsRune(tt.Charset, c),
					"%q is not in charset %q", c, tt.Charset)
			}
		})
	}

	t.Run("EmptyCharset", func(t *testing.T) {
		t.Parallel()
		_, err := cryptorand.StringCharset("", 10)
		require.Error(t, err)
	})
}

func TestHumanCharset(t *testing.T) {
	t.Parallel()

	// The invite alphabet must not contain visually confusable
	// characters.
	for _, c := range "0o1il" {
		require.NotContains(t, cryptorand.Human, string(c))
	}
}
