package database

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// ErrCorruptIndex is returned when an index artifact cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt index file")

// maxFlatIndexDim guards against allocating absurd buffers from a corrupt header.
const maxFlatIndexDim = 1 << 16

type flatIndexHeader struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint32
}

// WriteFlatIndex encodes row-major vectors of equal length dim. Row i is ordinal id i.
func WriteFlatIndex(w io.Writer, dim int, vectors [][]float32) error {
	hdr := flatIndexHeader{Version: flatIndexVersion, Dim: uint32(dim), Count: uint32(len(vectors))} //nolint:gosec // bounded by caller
	copy(hdr.Magic[:], flatIndexMagic)

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("failed to write index header: %w", err)
	}

	buf := make([]byte, 4*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, x := range v {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(x))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write index row %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadFlatIndex decodes an index written by WriteFlatIndex into a flat
// row-major slice.
func ReadFlatIndex(r io.Reader) (dim int, data []float32, err error) {
	br := bufio.NewReader(r)

	var hdr flatIndexHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return 0, nil, fmt.Errorf("%w: header: %w", ErrCorruptIndex, err)
	}
	if string(hdr.Magic[:]) != flatIndexMagic {
		return 0, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, hdr.Magic[:])
	}
	if hdr.Version != flatIndexVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, hdr.Version)
	}
	if hdr.Dim == 0 || hdr.Dim > maxFlatIndexDim {
		return 0, nil, fmt.Errorf("%w: dimension %d", ErrCorruptIndex, hdr.Dim)
	}

	dim = int(hdr.Dim)
	n := int(hdr.Count)
	data = make([]float32, 0, min(n*dim, 1<<24))
	row := make([]byte, 4*dim)
	for i := range n {
		if _, err := io.ReadFull(br, row); err != nil {
			return 0, nil, fmt.Errorf("%w: row %d: %w", ErrCorruptIndex, i, err)
		}
		for j := range dim {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:])))
		}
	}
	return dim, data, nil
}

// SaveFlatIndex atomically writes the vector index artifact.
func SaveFlatIndex(path string, dim int, vectors [][]float32) error {
	return writeAtomic(path, func(w io.Writer) error {
		return WriteFlatIndex(w, dim, vectors)
	})
}

// LoadFlatIndex reads the vector index artifact.
func LoadFlatIndex(path string) (int, []float32, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	dim, data, err := ReadFlatIndex(f)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", path, err)
	}
	return dim, data, nil
}

// SaveMetadata atomically writes the id to metadata map as indented JSON.
func SaveMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LoadMetadata reads the id to metadata map.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	meta := make(Metadata)
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}

// writeAtomic writes path through a temporary file in the same directory so
// readers never observe a partial artifact.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	pending, err := renameio.TempFile(dir, path)
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after a successful replace

	if err := write(pending); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := pending.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
