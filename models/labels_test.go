package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLabelSet_Label validates index resolution including out-of-range indices.
func TestLabelSet_Label(t *testing.T) {
	coco := COCOLabels()
	require.Equal(t, 80, coco.Len())

	tests := []struct {
		idx      int
		expected string
	}{
		{0, "person"},
		{16, "dog"},
		{79, "toothbrush"},
		{80, "unknown_80"},
		{-1, "unknown_-1"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, coco.Label(tt.idx))
		})
	}
}

// TestLabelSet_Presets validates the built-in sets.
func TestLabelSet_Presets(t *testing.T) {
	assert.Equal(t, 20, VOCLabels().Len())
	assert.Equal(t, 8, FERPlusLabels().Len())
	assert.Equal(t, "happiness", FERPlusLabels().Label(1))

	idx, ok := COCOLabels().Index("car")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = COCOLabels().Index("unicorn")
	assert.False(t, ok)
}

// TestLabelSet_Immutable validates callers cannot mutate the set.
func TestLabelSet_Immutable(t *testing.T) {
	src := []string{"a", "b"}
	s := NewLabelSet("test", src)
	src[0] = "z"

	labels := s.Labels()
	labels[1] = "y"

	assert.Equal(t, []string{"a", "b"}, s.Labels())
}

// TestLoadLabelSet validates label files.
func TestLoadLabelSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("# emotions\nneutral\n\n  happy  \nsad\n"), 0o600))

	s, err := LoadLabelSet(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"neutral", "happy", "sad"}, s.Labels())
	assert.Equal(t, path, s.Name())

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n# nothing\n"), 0o600))
	_, err = LoadLabelSet(empty)
	assert.Error(t, err)

	_, err = LoadLabelSet(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

// TestResolveLabelSet validates presets take priority over paths.
func TestResolveLabelSet(t *testing.T) {
	s, err := ResolveLabelSet("COCO")
	require.NoError(t, err)
	assert.Equal(t, 80, s.Len())

	s, err = ResolveLabelSet("ferplus")
	require.NoError(t, err)
	assert.Equal(t, "neutral", s.Label(0))

	_, err = ResolveLabelSet("")
	assert.Error(t, err)

	_, err = ResolveLabelSet("/does/not/exist.txt")
	assert.Error(t, err)
}
