package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// partSuffix marks in-flight downloads. A ".part" file is invisible to
// lookups and stats and is swept opportunistically.
const partSuffix = ".part"

// DiskStore is the authoritative on-disk layer. File existence is the ground
// truth for "already cached"; a fully written file only ever appears via
// rename, so readers never observe partial content under the final name.
type DiskStore struct {
	root   string
	logger zerolog.Logger
}

// NewDiskStore creates the cache root (idempotent) and returns the store.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	return &DiskStore{
		root:   abs,
		logger: log.With().Str("component", "disk-store").Logger(),
	}, nil
}

// Root returns the absolute cache root directory.
func (s *DiskStore) Root() string {
	return s.root
}

// Path maps a key to its absolute file path under the root.
func (s *DiskStore) Path(k Key) (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k.relPath())), nil
}

// Has reports whether the artifact exists as a fully written file. Empty
// files never count as cached.
func (s *DiskStore) Has(k Key) bool {
	p, err := s.Path(k)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Read loads the artifact bytes. Returns ErrCacheMiss if the file does not
// exist or is empty.
func (s *DiskStore) Read(k Key) (*Object, error) {
	p, err := s.Path(k)
	if err != nil {
		return nil, ErrCacheMiss
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cached file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrCacheMiss
	}

	return &Object{Key: k, Path: p, Data: data}, nil
}

// ReadMeta loads and parses the product's meta.json sidecar.
// Returns ErrMetaMiss if the sidecar is absent or unparseable.
func (s *DiskStore) ReadMeta(productID string) (map[string]any, error) {
	obj, err := s.Read(MetaKey(productID))
	if err != nil {
		return nil, ErrMetaMiss
	}

	var meta map[string]any
	if err := json.Unmarshal(obj.Data, &meta); err != nil {
		s.logger.Warn().
			Str("product_id", productID).
			Err(err).
			Msg("Corrupt meta sidecar")
		return nil, ErrMetaMiss
	}
	return meta, nil
}

// Put streams body into the artifact's final path. The transfer is staged as
// "<filename>.part" and renamed only on success, and the copy loop checks
// ctx between chunks so a cancel mid-transfer stops promptly without leaving
// a truncated file under the final name.
func (s *DiskStore) Put(ctx context.Context, k Key, body io.Reader) (int64, error) {
	p, err := s.Path(k)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}

	part := p + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create part file: %w", err)
	}

	written, err := copyWithContext(ctx, f, body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(part)
		return written, err
	}

	if err := os.Rename(part, p); err != nil {
		os.Remove(part)
		return written, fmt.Errorf("finalize artifact: %w", err)
	}

	return written, nil
}

// Products lists the product directories currently present under the root.
func (s *DiskStore) Products() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read cache root: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// RemoveProduct recursively deletes one product directory.
func (s *DiskStore) RemoveProduct(productID string) error {
	k := Key{ProductID: productID, Filename: MetaFilename}
	if err := k.Validate(); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, productID))
}

// Clear deletes the entire cache root and recreates it empty.
func (s *DiskStore) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove cache root: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("recreate cache root: %w", err)
	}
	return nil
}

// Usage walks the store once and counts product directories, files and
// bytes. Part files are excluded; they are not cached content.
func (s *DiskStore) Usage() (products, files int, bytes int64, err error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read cache root: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		products++
		walkErr := filepath.WalkDir(filepath.Join(s.root, e.Name()), func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasSuffix(d.Name(), partSuffix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files++
			bytes += info.Size()
			return nil
		})
		if walkErr != nil {
			return 0, 0, 0, fmt.Errorf("walk product dir: %w", walkErr)
		}
	}
	return products, files, bytes, nil
}

// SweepParts removes leftover ".part" files from abandoned transfers.
// Individual failures are logged and do not abort the sweep.
func (s *DiskStore) SweepParts() {
	_ = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), partSuffix) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			s.logger.Warn().Str("path", p).Err(err).Msg("Failed to remove part file")
		}
		return nil
	})
}

// copyWithContext copies src to dst in chunks, checking ctx between chunks
// so a cancelled transfer stops within one chunk.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
