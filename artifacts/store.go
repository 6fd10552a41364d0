package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"powerwatch/ml"
)

const (
	manifestFile = "manifest.json"
	detectorFile = "detector.json"
	scalerFile   = "scaler.json"
)

// ErrAbsent means the store holds no usable artifact pair.
var ErrAbsent = errors.New("no trained model artifacts")

// Meta describes a persisted artifact pair
type Meta struct {
	Version      int64     `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	TrainRows    int       `json:"train_rows"`
	Source       string    `json:"source"`
	DetectorHash string    `json:"detector_sha256"`
	ScalerHash   string    `json:"scaler_sha256"`
}

// Pair is a fitted detector + scaler snapshot. Once saved or swapped into a
// Handle it must not be mutated.
type Pair struct {
	Detector *ml.IsolationForest
	Scaler   *ml.StandardScaler
	Meta     Meta
}

// Store persists artifact pairs in one canonical directory. The manifest is
// written last so a reader never sees a manifest pointing at missing files,
// and loads verify the recorded checksums.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the canonical artifact directory.
func (s *Store) Dir() string { return s.dir }

// Save writes detector and scaler files, then the manifest. Checksums and
// the version are filled into p.Meta.
func (s *Store) Save(p *Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Detector == nil || p.Scaler == nil {
		return errors.New("artifact pair is incomplete")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	detector, err := json.Marshal(p.Detector)
	if err != nil {
		return fmt.Errorf("encode detector: %w", err)
	}
	scaler, err := json.Marshal(p.Scaler)
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}

	if p.Meta.Version == 0 {
		p.Meta.Version = time.Now().UnixMilli()
	}
	p.Meta.DetectorHash = hashHex(detector)
	p.Meta.ScalerHash = hashHex(scaler)
	manifest, err := json.Marshal(p.Meta)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := writeAtomic(filepath.Join(s.dir, detectorFile), detector); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, scalerFile), scaler); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, manifestFile), manifest)
}

// Load reads and verifies the current pair. Missing, corrupt or
// checksum-mismatched artifacts report ErrAbsent.
func (s *Store) Load() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(manifest, &meta); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest: %v", ErrAbsent, err)
	}

	detector, err := os.ReadFile(filepath.Join(s.dir, detectorFile))
	if err != nil {
		return nil, fmt.Errorf("%w: detector: %v", ErrAbsent, err)
	}
	scaler, err := os.ReadFile(filepath.Join(s.dir, scalerFile))
	if err != nil {
		return nil, fmt.Errorf("%w: scaler: %v", ErrAbsent, err)
	}
	if hashHex(detector) != meta.DetectorHash {
		return nil, fmt.Errorf("%w: detector checksum mismatch", ErrAbsent)
	}
	if hashHex(scaler) != meta.ScalerHash {
		return nil, fmt.Errorf("%w: scaler checksum mismatch", ErrAbsent)
	}

	pair := &Pair{
		Detector: &ml.IsolationForest{},
		Scaler:   &ml.StandardScaler{},
		Meta:     meta,
	}
	if err := json.Unmarshal(detector, pair.Detector); err != nil {
		return nil, fmt.Errorf("%w: decode detector: %v", ErrAbsent, err)
	}
	if err := json.Unmarshal(scaler, pair.Scaler); err != nil {
		return nil, fmt.Errorf("%w: decode scaler: %v", ErrAbsent, err)
	}
	if !pair.Detector.Fitted() || !pair.Scaler.Fitted() {
		return nil, fmt.Errorf("%w: artifacts are not fitted", ErrAbsent)
	}
	return pair, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
