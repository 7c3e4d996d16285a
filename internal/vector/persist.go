package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/models"
)

// Companion file names. The pair is always written together and read
// together; one file without the other means no persisted index.
const (
	vectorsFile  = "vectors.bin"
	passagesFile = "passages.json"
)

// Save persists the index as two companion files under the configured
// directory, creating it if absent. With nothing indexed it logs a
// diagnostic and does nothing.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes both companion files. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	if len(s.entries) == 0 {
		s.logger.Warn("no vector store to save")
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create vector store dir: %w", err)
	}
	if err := s.writeVectors(filepath.Join(s.dir, vectorsFile)); err != nil {
		return err
	}
	if err := s.writePassages(filepath.Join(s.dir, passagesFile)); err != nil {
		return err
	}
	s.logger.Debug("vector store saved", zap.String("dir", s.dir), zap.Int("passages", len(s.entries)))
	return nil
}

// writeVectors serializes the vectors: dimension (4 bytes), count (4 bytes),
// then count*dimension little-endian float32 values.
func (s *Store) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(s.dims)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range s.entries {
		if _, err := f.Write(float32SliceToBytes(e.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

func (s *Store) writePassages(path string) error {
	passages := make([]models.Passage, len(s.entries))
	for i, e := range s.entries {
		passages[i] = e.passage
	}
	data, err := json.Marshal(passages)
	if err != nil {
		return fmt.Errorf("marshal passages: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write passages file: %w", err)
	}
	return nil
}

// Load reads both companion files and replaces in-memory state, returning
// true on success. Missing files, a partial pair, corruption, or a count
// mismatch all return false and leave previous state untouched.
func (s *Store) Load() bool {
	vectors, dims, err := readVectors(filepath.Join(s.dir, vectorsFile))
	if err != nil {
		s.logger.Info("vector store not loaded", zap.String("dir", s.dir), zap.Error(err))
		return false
	}
	passages, err := readPassages(filepath.Join(s.dir, passagesFile))
	if err != nil {
		s.logger.Info("vector store not loaded", zap.String("dir", s.dir), zap.Error(err))
		return false
	}
	if len(vectors) != len(passages) {
		s.logger.Warn("vector store files disagree",
			zap.Int("vectors", len(vectors)), zap.Int("passages", len(passages)))
		return false
	}
	entries := make([]entry, len(vectors))
	for i := range vectors {
		entries[i] = entry{vector: vectors[i], passage: passages[i]}
	}
	s.mu.Lock()
	s.entries = entries
	s.dims = dims
	s.mu.Unlock()
	s.logger.Info("vector store loaded", zap.Int("passages", len(entries)))
	return true
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat vectors file: %w", err)
	}
	var dims, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return nil, 0, fmt.Errorf("read dimensions: %w", err)
	}
	if dims == 0 {
		return nil, 0, fmt.Errorf("corrupt vectors file: zero dimension")
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, 0, fmt.Errorf("read count: %w", err)
	}
	// The header is untrusted: the payload it promises must fit in the file,
	// so corruption fails here instead of demanding a huge allocation.
	payload := info.Size() - 8
	if int64(dims)*4 > payload || int64(n)*int64(dims)*4 > payload {
		return nil, 0, fmt.Errorf("corrupt vectors file: header claims %d x %d floats in %d bytes", n, dims, payload)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dims)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, 0, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, int(dims), nil
}

func readPassages(path string) ([]models.Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open passages file: %w", err)
	}
	var passages []models.Passage
	if err := json.Unmarshal(data, &passages); err != nil {
		return nil, fmt.Errorf("decode passages file: %w", err)
	}
	return passages, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
