package cache

import (
	"errors"
	"path"
	"strings"
)

// MetaFilename is the well-known sidecar stored at the product root.
const MetaFilename = "meta.json"

// Key uniquely identifies one cached artifact. Folder is empty for files
// stored directly under the product directory (the meta.json sidecar).
type Key struct {
	ProductID string
	Folder    string
	Filename  string
}

// MetaKey returns the key of a product's sidecar file.
func MetaKey(productID string) Key {
	return Key{ProductID: productID, Filename: MetaFilename}
}

// Validate checks that the key maps to a safe path inside the cache root.
// Path separators and dot segments in any component are rejected so a key
// can never escape its product directory.
func (k Key) Validate() error {
	if k.ProductID == "" {
		return errors.New("product id required")
	}
	if k.Filename == "" {
		return errors.New("filename required")
	}
	for _, part := range []string{k.ProductID, k.Folder, k.Filename} {
		if part == "." || part == ".." {
			return errors.New("invalid path segment")
		}
		if strings.ContainsAny(part, `/\`) {
			return errors.New("path separator in key component")
		}
	}
	return nil
}

// String generates a deterministic key string for logs and map diagnostics.
// Format: img:product_id/folder/filename (folder omitted when empty).
//
// Example:
//
//	img:p100234/detail/0.jpg
//	img:p100234/meta.json
func (k Key) String() string {
	return "img:" + k.relPath()
}

// relPath is the slash-separated path of the artifact below the cache root.
func (k Key) relPath() string {
	if k.Folder == "" {
		return path.Join(k.ProductID, k.Filename)
	}
	return path.Join(k.ProductID, k.Folder, k.Filename)
}
