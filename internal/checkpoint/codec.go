package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"koipond/internal/model"
	"koipond/internal/storage"
)

// SerializationError reports a checkpoint that could not be written. The run
// carries on without it.
type SerializationError struct {
	Generation int
	Err        error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("checkpoint generation %d: %v", e.Generation, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Encode writes snap as a gzip-compressed gob blob.
func Encode(snap model.Snapshot) ([]byte, error) {
	return encode(snap)
}

func Decode(blob []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := decode(blob, &snap); err != nil {
		return model.Snapshot{}, err
	}
	if snap.SchemaVersion != storage.CurrentSchemaVersion || snap.CodecVersion != storage.CurrentCodecVersion {
		return model.Snapshot{}, fmt.Errorf("%w: snapshot %s is v%d/%d", storage.ErrVersionMismatch, snap.ID, snap.SchemaVersion, snap.CodecVersion)
	}
	return snap, nil
}

// EncodeGenome writes a single genome blob. The genome must already be free
// of its occupant.
func EncodeGenome(g model.Genome) ([]byte, error) {
	return encode(g)
}

func DecodeGenome(blob []byte) (model.Genome, error) {
	var g model.Genome
	if err := decode(blob, &g); err != nil {
		return model.Genome{}, err
	}
	return g, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(blob []byte, v any) error {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("open checkpoint blob: %w", err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// WriteFile replaces path with data by renaming a temporary file written in
// the same directory.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads and decodes a population checkpoint.
func LoadFile(path string) (model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err := Decode(data)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// LoadGenomeFile reads a best-genome blob.
func LoadGenomeFile(path string) (model.Genome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Genome{}, err
	}
	g, err := DecodeGenome(data)
	if err != nil {
		return model.Genome{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
