package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"esm_pdw/pkg/models"
)

const (
	// DefaultVersion é a versão do formato de arquivo
	DefaultVersion = "NG-PDW-1.0"

	// DefaultSensorID identifica o sensor nos arquivos
	DefaultSensorID = "ESM-SENTRY-01"

	timestampLayout = "20060102_150405"
	filePrefix      = "ng_pdw_snapshot_"
	fileSuffix      = ".json"
)

// ErrNilRecords indica uma requisição sem lista de PDWs
var ErrNilRecords = errors.New("snapshot: pdws list is required")

// Index guarda referências aos snapshots gravados (ex: Redis)
type Index interface {
	Record(ctx context.Context, filename string, meta models.SnapshotMetadata) error
	Recent(ctx context.Context, n int) ([]string, error)
}

// Writer grava snapshots de PDW como JSON indentado, de forma atômica
type Writer struct {
	dir      string
	version  string
	sensorID string
	index    Index
	now      func() time.Time
}

// Option configura o Writer
type Option func(*Writer)

// WithIndex registra cada snapshot gravado num índice
func WithIndex(idx Index) Option {
	return func(w *Writer) { w.index = idx }
}

// WithClock injeta o relógio (testes)
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter cria um Writer para o diretório informado
func NewWriter(dir, version, sensorID string, opts ...Option) *Writer {
	if version == "" {
		version = DefaultVersion
	}
	if sensorID == "" {
		sensorID = DefaultSensorID
	}
	w := &Writer{dir: dir, version: version, sensorID: sensorID, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Build monta o envelope removendo o display tag de cada registro
func (w *Writer) Build(pdws []models.PDW, at time.Time) models.Snapshot {
	clean := make([]models.ArchivedPDW, len(pdws))
	for i, p := range pdws {
		clean[i] = p.Archive()
	}
	return models.Snapshot{
		Metadata: models.SnapshotMetadata{
			Version:    w.version,
			Timestamp:  at.Format(timestampLayout),
			SensorID:   w.sensorID,
			PulseCount: len(clean),
		},
		PDWs: clean,
	}
}

// Save grava o snapshot e retorna o nome do arquivo gerado.
// A gravação é tudo-ou-nada: arquivo temporário, fsync e rename.
func (w *Writer) Save(ctx context.Context, pdws []models.PDW) (string, models.SnapshotMetadata, error) {
	if pdws == nil {
		return "", models.SnapshotMetadata{}, ErrNilRecords
	}

	snap := w.Build(pdws, w.now())
	filename := filePrefix + snap.Metadata.Timestamp + fileSuffix

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return "", snap.Metadata, fmt.Errorf("snapshot: encode: %w", err)
	}

	if err := writeAtomic(filepath.Join(w.dir, filename), data); err != nil {
		return "", snap.Metadata, err
	}

	// o arquivo já está completo; falha de índice não desfaz a gravação
	if w.index != nil {
		if err := w.index.Record(ctx, filename, snap.Metadata); err != nil {
			return filename, snap.Metadata, fmt.Errorf("%w: %v", ErrIndex, err)
		}
	}

	return filename, snap.Metadata, nil
}

// ErrIndex indica que o arquivo foi gravado mas o índice não foi atualizado
var ErrIndex = errors.New("snapshot: written but not indexed")

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpName)
		return cause
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("snapshot: write: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("snapshot: sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Recent lista os snapshots mais recentes, pelo índice quando houver
func (w *Writer) Recent(ctx context.Context, n int) ([]string, error) {
	if w.index != nil {
		return w.index.Recent(ctx, n)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	// o timestamp no nome ordena lexicograficamente
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if n > 0 && len(names) > n {
		names = names[:n]
	}
	return names, nil
}
