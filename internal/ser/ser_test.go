package ser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gofhss/internal/frame"
	"github.com/rjboer/gofhss/internal/hop"
	"github.com/rjboer/gofhss/internal/logging"
)

func rate20Reference(t *testing.T, frames int) ([][]int, frame.Reference) {
	t.Helper()
	syms, err := frame.Cycle(hop.GeometryFor(20), 4, 12345, frames)
	require.NoError(t, err)
	return syms, frame.NewReference(syms)
}

func TestSERZeroForMatchingFrames(t *testing.T) {
	syms, ref := rate20Reference(t, 1)
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res := m.Measure(int64(i), syms[0])
		assert.Equal(t, 108, res.Symbols)
		assert.Zero(t, res.Errors)
		assert.Zero(t, res.SER)
	}
	st := m.Statistics()
	assert.Equal(t, int64(5), st.Frames)
	assert.Equal(t, int64(540), st.Symbols)
	assert.Zero(t, st.SER)
	assert.Zero(t, m.SER())
}

func TestSERSingleSymbolError(t *testing.T) {
	syms, ref := rate20Reference(t, 1)
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)

	got := append([]int(nil), syms[0]...)
	got[17] = (got[17] + 1) % 4
	res := m.Measure(0, got)
	assert.Equal(t, 1, res.Errors)
	assert.InDelta(t, 1.0/108, res.SER, 1e-12)
	assert.InDelta(t, 1.0/108, m.SER(), 1e-12)
}

func TestSERMultiFrameReference(t *testing.T) {
	syms, ref := rate20Reference(t, 3)
	require.NotEqual(t, syms[0], syms[1])
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)

	// frame i is compared with reference i mod 3
	for i := 0; i < 7; i++ {
		assert.Zero(t, m.Measure(int64(i), syms[i%3]).Errors, "frame %d", i)
	}
	assert.NotZero(t, m.Measure(7, syms[0]).Errors, "frame 7 expects reference 1")
}

func TestSERShortFrameCountsMissingSymbols(t *testing.T) {
	syms, ref := rate20Reference(t, 1)
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)
	res := m.Measure(0, syms[0][:100])
	assert.Equal(t, 8, res.Errors)
	assert.Equal(t, 108, res.Symbols)
}

func TestSERHistoryWindow(t *testing.T) {
	syms, ref := rate20Reference(t, 1)
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)

	bad := make([]int, 108)
	for i := range bad {
		bad[i] = (syms[0][i] + 1) % 4
	}
	for i := 0; i < HistorySize; i++ {
		m.Measure(int64(i), bad)
	}
	assert.InDelta(t, 1.0, m.Statistics().Recent, 1e-12)
	for i := 0; i < HistorySize/2; i++ {
		m.Measure(int64(i), syms[0])
	}
	st := m.Statistics()
	assert.Equal(t, HistorySize, st.RecentFrames)
	assert.InDelta(t, 0.5, st.Recent, 1e-12)
	assert.InDelta(t, 2.0/3, st.SER, 1e-12)
}

func TestSERSummaryLogged(t *testing.T) {
	syms, ref := rate20Reference(t, 1)
	var buf bytes.Buffer
	m, err := NewMeasurement(ref, logging.New(logging.Info, logging.JSON, &buf))
	require.NoError(t, err)
	for i := 0; i < SummaryInterval-1; i++ {
		m.Measure(int64(i), syms[0])
	}
	assert.Empty(t, buf.String())
	m.Measure(SummaryInterval, syms[0])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload))
	assert.Equal(t, "symbol error rate", payload["msg"])
	assert.Equal(t, "ser", payload["subsystem"])
	assert.Equal(t, float64(30), payload["frames"])
	assert.Equal(t, float64(0), payload["recent_ser"])
}

func TestSERReset(t *testing.T) {
	syms, ref := rate20Reference(t, 2)
	m, err := NewMeasurement(ref, nil)
	require.NoError(t, err)
	m.Measure(0, syms[0])
	m.Measure(1, syms[0])
	require.NotZero(t, m.SER())

	m.Reset()
	st := m.Statistics()
	assert.Zero(t, st.Frames)
	assert.Zero(t, st.Errors)
	assert.Zero(t, st.RecentFrames)
	assert.Zero(t, m.Measure(2, syms[0]).Errors, "reset restarts at reference frame 0")
}

func TestNewMeasurementRejectsEmptyReference(t *testing.T) {
	_, err := NewMeasurement(frame.Reference{}, nil)
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestCSVLogRollsOverDaily(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLog(filepath.Join(dir, "ser-%Y-%m-%d.csv"))
	require.NoError(t, err)
	day := time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	require.NoError(t, l.Write(Result{Frame: 0, Hop: 100, Symbols: 108}))
	require.NoError(t, l.Write(Result{Frame: 1, Hop: 101, Symbols: 108, Errors: 1, SER: 1.0 / 108}))
	first := l.Name()
	assert.Equal(t, filepath.Join(dir, "ser-2025-03-14.csv"), first)

	day = day.Add(2 * time.Minute)
	require.NoError(t, l.Write(Result{Frame: 2, Hop: 102, Symbols: 108}))
	assert.Equal(t, filepath.Join(dir, "ser-2025-03-15.csv"), l.Name())
	require.NoError(t, l.Close())

	rows := readCSV(t, first)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"1", "101", "108", "1"}, rows[2][2:6])

	rows = readCSV(t, l.Name())
	require.Len(t, rows, 2)
}

func TestCSVLogAppendsWithoutSecondHeader(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ser.csv")
	for i := 0; i < 2; i++ {
		l, err := NewCSVLog(name)
		require.NoError(t, err)
		require.NoError(t, l.Write(Result{Frame: int64(i)}))
		require.NoError(t, l.Close())
	}
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "utime"))
	assert.Len(t, readCSV(t, name), 3)
}

func TestNewCSVLogRejectsEmptyPattern(t *testing.T) {
	_, err := NewCSVLog("")
	assert.Error(t, err)
}

func readCSV(t *testing.T, name string) [][]string {
	t.Helper()
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
