package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/sagarbiophysics/relion/pkg/freq"
)

// File format: magic, version, width, height, then a zstd frame of the
// float64 little-endian pixel data.
const (
	fileMagic   = "ABCK"
	fileVersion = uint8(1)
	headerSize  = 4 + 1 + 4 + 4
)

// FileStore keeps one file per key under a root directory. Writes go to
// a temp file first and are renamed into place, so a crash mid-write
// never leaves a key that exists but decodes short.
type FileStore struct {
	root string
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewFileStore creates the root directory if needed and returns a store
// rooted there.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("store: creating root: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}
	return &FileStore{root: root, enc: enc, dec: dec}, nil
}

// Path returns the file path a key maps to.
func (fs *FileStore) Path(key Key) string {
	name := fmt.Sprintf("%s_optics-group-%d_%s.chk",
		sanitize(key.Micrograph), key.Group, key.Role)
	return filepath.Join(fs.root, name)
}

// Put encodes and atomically writes img under key.
func (fs *FileStore) Put(key Key, img *freq.RealImage) error {
	buf := make([]byte, headerSize, headerSize+8*len(img.Data))
	copy(buf, fileMagic)
	buf[4] = fileVersion
	binary.LittleEndian.PutUint32(buf[5:], uint32(img.W))
	binary.LittleEndian.PutUint32(buf[9:], uint32(img.H))

	raw := make([]byte, 8*len(img.Data))
	for i, v := range img.Data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	buf = fs.enc.EncodeAll(raw, buf)

	path := fs.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("store: writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: committing %s: %w", key, err)
	}
	return nil
}

// Get reads and decodes the image stored under key.
func (fs *FileStore) Get(key Key) (*freq.RealImage, error) {
	buf, err := os.ReadFile(fs.Path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", key, err)
	}
	if len(buf) < headerSize || string(buf[:4]) != fileMagic {
		return nil, fmt.Errorf("store: %s: bad magic", key)
	}
	if buf[4] != fileVersion {
		return nil, fmt.Errorf("store: %s: unsupported version %d", key, buf[4])
	}
	w := int(binary.LittleEndian.Uint32(buf[5:]))
	h := int(binary.LittleEndian.Uint32(buf[9:]))

	raw, err := fs.dec.DecodeAll(buf[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompressing %s: %w", key, err)
	}
	if len(raw) != 8*w*h {
		return nil, fmt.Errorf("store: %s: payload is %d bytes, want %d", key, len(raw), 8*w*h)
	}
	img := &freq.RealImage{W: w, H: h, Data: make([]float64, w*h)}
	for i := range img.Data {
		img.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return img, nil
}

// Exists reports whether a committed image is present under key.
func (fs *FileStore) Exists(key Key) (bool, error) {
	_, err := os.Stat(fs.Path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	return true, nil
}

func sanitize(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")
	return r.Replace(name)
}
