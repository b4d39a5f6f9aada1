package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"esm_pdw/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	recorded []string
	metas    []models.SnapshotMetadata
	err      error
}

func (f *fakeIndex) Record(_ context.Context, filename string, meta models.SnapshotMetadata) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append([]string{filename}, f.recorded...)
	f.metas = append(f.metas, meta)
	return nil
}

func (f *fakeIndex) Recent(_ context.Context, n int) ([]string, error) {
	if n > 0 && len(f.recorded) > n {
		return f.recorded[:n], nil
	}
	return f.recorded, nil
}

func fixedClock(ts string) func() time.Time {
	at, _ := time.ParseInLocation(timestampLayout, ts, time.Local)
	return func() time.Time { return at }
}

func samplePDWs(n int) []models.PDW {
	out := make([]models.PDW, n)
	for i := range out {
		out[i] = models.PDW{
			TOAUS:          float64(i) * 1000,
			TrackID:        1,
			FreqMHz:        9400.3,
			AmplitudeDBm:   -30.5,
			FreqModulation: 1.1,
			PulseWidthUS:   10.02,
			AOADeg:         45.1,
			PRIUS:          1000.2,
			DisplayTag:     "#FF5555",
		}
	}
	return out
}

func TestWriter_SaveStripsDisplayTag(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "", "", WithClock(fixedClock("20260101_120000")))

	filename, meta, err := w.Save(context.Background(), samplePDWs(3))
	require.NoError(t, err)
	assert.Equal(t, "ng_pdw_snapshot_20260101_120000.json", filename)
	assert.Equal(t, 3, meta.PulseCount)

	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"metadata\""), "4-space indentation")

	var raw struct {
		Metadata map[string]interface{}   `json:"metadata"`
		PDWs     []map[string]interface{} `json:"pdws"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	require.Len(t, raw.PDWs, 3)
	for _, rec := range raw.PDWs {
		assert.NotContains(t, rec, "Color")
		assert.Contains(t, rec, "TOA")
		assert.Contains(t, rec, "AOA")
	}
	assert.Equal(t, 3.0, raw.Metadata["pulse_count"])
	assert.Equal(t, DefaultVersion, raw.Metadata["version"])
	assert.Equal(t, DefaultSensorID, raw.Metadata["sensor_id"])
	assert.Equal(t, "20260101_120000", raw.Metadata["timestamp"])

	// nenhum temporário sobra no diretório
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriter_EmptyAndNil(t *testing.T) {
	w := NewWriter(t.TempDir(), "", "")

	_, meta, err := w.Save(context.Background(), []models.PDW{})
	require.NoError(t, err)
	assert.Equal(t, 0, meta.PulseCount)

	_, _, err = w.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRecords)
}

func TestWriter_FailureLeavesNoFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	w := NewWriter(dir, "", "")

	filename, _, err := w.Save(context.Background(), samplePDWs(2))
	assert.Error(t, err)
	assert.Empty(t, filename)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriter_IndexAndRecent(t *testing.T) {
	idx := &fakeIndex{}
	w := NewWriter(t.TempDir(), "NG-PDW-1.0", "ESM-TEST", WithIndex(idx), WithClock(fixedClock("20260102_080000")))

	filename, _, err := w.Save(context.Background(), samplePDWs(1))
	require.NoError(t, err)
	require.Equal(t, []string{filename}, idx.recorded)
	assert.Equal(t, "ESM-TEST", idx.metas[0].SensorID)

	recent, err := w.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{filename}, recent)
}

func TestWriter_IndexFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "", "", WithIndex(&fakeIndex{err: errors.New("redis down")}))

	filename, _, err := w.Save(context.Background(), samplePDWs(1))
	assert.ErrorIs(t, err, ErrIndex)
	require.NotEmpty(t, filename)

	_, statErr := os.Stat(filepath.Join(dir, filename))
	assert.NoError(t, statErr)
}

func TestWriter_RecentFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, ts := range []string{"20260101_100000", "20260101_110000", "20260101_090000"} {
		w := NewWriter(dir, "", "", WithClock(fixedClock(ts)))
		_, _, err := w.Save(context.Background(), samplePDWs(1))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	recent, err := NewWriter(dir, "", "").Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ng_pdw_snapshot_20260101_110000.json",
		"ng_pdw_snapshot_20260101_100000.json",
	}, recent)
}
