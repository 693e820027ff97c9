package evaluator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKnowledgeBaseSortsByFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("second"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("first"), 0o644))

	kb, err := LoadKnowledgeBase(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, kb.Passages())
}

func TestTokenBoundContextCapsPassageCount(t *testing.T) {
	enc, err := tiktoken.EncodingForModel("gpt-4o")
	require.NoError(t, err)

	out := tokenBoundContext([]string{"a", "b", "c"}, 2, 1000, enc)
	assert.Len(t, out, 2)
}

func TestTokenBoundContextTruncatesByTokenBudget(t *testing.T) {
	enc, err := tiktoken.EncodingForModel("gpt-4o")
	require.NoError(t, err)

	long := "the quick brown fox jumps over the lazy dog many times over"
	out := tokenBoundContext([]string{long}, 5, 3, enc)
	require.Len(t, out, 1)
	assert.Less(t, len(out[0]), len(long))
}
