package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.Contains(t, codeAlphabet, string(c))
		}
		seen[code] = struct{}{}
	}

	// not a collision guarantee, but 100 draws from 36^6 repeating
	// would indicate a broken generator
	assert.Greater(t, len(seen), 90)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "X7K2QT", NormalizeCode("x7k2qt"))
	assert.Equal(t, "X7K2QT", NormalizeCode("  X7K2QT\n"))
	assert.Equal(t, "", NormalizeCode("   "))
}
