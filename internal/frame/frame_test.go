package frame

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/hop"
)

func TestSourceFrameLayout(t *testing.T) {
	geom := hop.GeometryFor(20)
	src, err := NewSource(geom, 4, 12345, 1)
	require.NoError(t, err)

	f := src.Next()
	require.Len(t, f, 108)
	for i, v := range f {
		if v < 0 || v >= 4 {
			t.Fatalf("symbol %d out of range: %d", i, v)
		}
	}
	assert.Equal(t, src.Header(), f[:27])
	assert.Equal(t, int64(1), src.Count())
}

func TestSourceRepeatsEveryFrameByDefault(t *testing.T) {
	src, err := NewSource(hop.GeometryFor(50), 8, 12345, 1)
	require.NoError(t, err)
	first := src.Next()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, src.Next())
	}
}

func TestSourceCycle(t *testing.T) {
	geom := hop.GeometryFor(20)
	src, err := NewSource(geom, 4, 12345, 3)
	require.NoError(t, err)
	a, b, c := src.Next(), src.Next(), src.Next()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.Equal(t, a, src.Next())

	frames, err := Cycle(geom, 4, 12345, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]int{a, b, c}, frames)
}

func TestSourceHeaderIndependentOfInfoSeed(t *testing.T) {
	geom := hop.GeometryFor(10)
	a, err := NewSource(geom, 4, 1, 1)
	require.NoError(t, err)
	b, err := NewSource(geom, 4, 2, 1)
	require.NoError(t, err)
	fa, fb := a.Next(), b.Next()
	assert.Equal(t, fa[:geom.HeaderSymbols], fb[:geom.HeaderSymbols])
	assert.NotEqual(t, fa[geom.HeaderSymbols:], fb[geom.HeaderSymbols:])
}

func TestSourceRejectsConfig(t *testing.T) {
	geom := hop.GeometryFor(20)
	for _, tc := range []struct {
		order int
		seed  int64
		cycle int
	}{{3, 1, 1}, {4, -1, 1}, {4, 1, 0}} {
		_, err := NewSource(geom, tc.order, tc.seed, tc.cycle)
		assert.True(t, errors.Is(err, config.ErrInvalidConfig), "%+v: %v", tc, err)
	}
}

func TestSyncWordFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head_sample", "sync_word_hop20_psk4")
	raw := SyncWord{1, 1i, -0.5 + 0.25i, 0}
	require.NoError(t, WriteSyncWord(path, raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(32), info.Size())

	got, err := LoadSyncWord(path)
	require.NoError(t, err)
	assert.Equal(t, raw.Rotated(), got)
}

func TestLoadSyncWordErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSyncWord(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o644))
	_, err = LoadSyncWord(bad)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSyncWordFromVector(t *testing.T) {
	vec := []complex64{1, 2, 3, 4}
	w, err := SyncWordFromVector(vec, 2)
	require.NoError(t, err)
	assert.Equal(t, SyncWord{1, 2}, w)
	vec[0] = 9
	assert.Equal(t, complex64(1), w[0])

	_, err = SyncWordFromVector(vec, 5)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestReferenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idxs_hop20_psk4")
	frames := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}}
	require.NoError(t, WriteReference(path, NewReference(frames)))

	ref, err := LoadReference(path, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Frames())
	assert.Equal(t, []uint8{0, 1, 2, 3}, ref.Frame(0))
	assert.Equal(t, []uint8{3, 2, 1, 0}, ref.Frame(1))
	assert.Equal(t, []uint8{0, 1, 2, 3}, ref.Frame(4))
	assert.Equal(t, []uint8{3, 2, 1, 0}, ref.Frame(-1))
}

func TestLoadReferenceRejects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2}, 0o644))
	_, err := LoadReference(path, 4, 4)
	assert.True(t, errors.Is(err, ErrMalformed))

	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2, 7}, 0o644))
	_, err = LoadReference(path, 4, 4)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = LoadReference(filepath.Join(dir, "none"), 4, 4)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
