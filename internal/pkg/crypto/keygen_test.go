package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLinkID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := GenerateLinkID()
		require.NoError(t, err)
		require.Len(t, id, LinkIDLength)
		for _, c := range id {
			require.True(t, strings.ContainsRune(linkIDChars, c), "unexpected character %q", c)
		}
		require.False(t, seen[id], "duplicate link id generated")
		seen[id] = true
	}
}

func TestGenerateStorageKey(t *testing.T) {
	key, err := GenerateStorageKey()
	require.NoError(t, err)
	require.Len(t, key, StorageKeyBytes*2)

	other, err := GenerateStorageKey()
	require.NoError(t, err)
	require.NotEqual(t, key, other)
}
