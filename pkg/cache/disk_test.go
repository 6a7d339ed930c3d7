package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupDiskStore(t *testing.T) *DiskStore {
	t.Helper()

	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	return store
}

func TestNewDiskStore_EmptyRoot(t *testing.T) {
	if _, err := NewDiskStore(""); err == nil {
		t.Error("NewDiskStore with empty root should fail")
	}
}

func TestDiskStore_PutAndRead(t *testing.T) {
	store := setupDiskStore(t)
	key := Key{ProductID: "p1", Folder: "detail", Filename: "0.jpg"}

	n, err := store.Put(context.Background(), key, strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n != int64(len("image-bytes")) {
		t.Errorf("Put wrote %d bytes, want %d", n, len("image-bytes"))
	}

	if !store.Has(key) {
		t.Error("Has should report the artifact after Put")
	}

	obj, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(obj.Data) != "image-bytes" {
		t.Errorf("Read data = %q, want %q", obj.Data, "image-bytes")
	}

	// Layout must be root/{product}/{folder}/{filename}.
	want := filepath.Join(store.Root(), "p1", "detail", "0.jpg")
	if obj.Path != want {
		t.Errorf("Path = %q, want %q", obj.Path, want)
	}
}

func TestDiskStore_Read_Miss(t *testing.T) {
	store := setupDiskStore(t)

	_, err := store.Read(Key{ProductID: "p1", Folder: "detail", Filename: "none.jpg"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestDiskStore_Has_IgnoresEmptyFiles(t *testing.T) {
	store := setupDiskStore(t)
	key := Key{ProductID: "p1", Folder: "detail", Filename: "0.jpg"}

	p, err := store.Path(key)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if store.Has(key) {
		t.Error("Has should not report an empty file as cached")
	}
	if _, err := store.Read(key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Read of empty file should miss, got %v", err)
	}
}

func TestDiskStore_Put_Cancelled(t *testing.T) {
	store := setupDiskStore(t)
	key := Key{ProductID: "p1", Folder: "detail", Filename: "0.jpg"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, key, strings.NewReader("never-written")); err == nil {
		t.Fatal("Put with cancelled context should fail")
	}

	// Neither the final file nor the part file may remain.
	if store.Has(key) {
		t.Error("Cancelled Put must not produce a cached file")
	}
	p, _ := store.Path(key)
	if _, err := os.Stat(p + partSuffix); !os.IsNotExist(err) {
		t.Error("Cancelled Put must clean up its part file")
	}
}

func TestDiskStore_PartFilesInvisible(t *testing.T) {
	store := setupDiskStore(t)
	key := Key{ProductID: "p1", Folder: "detail", Filename: "0.jpg"}

	p, err := store.Path(key)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p+partSuffix, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if store.Has(key) {
		t.Error("Has must not see part files")
	}

	products, files, bytes, err := store.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if files != 0 || bytes != 0 {
		t.Errorf("Usage counted part files: files=%d bytes=%d", files, bytes)
	}
	if products != 1 {
		t.Errorf("Usage products = %d, want 1", products)
	}

	store.SweepParts()
	if _, err := os.Stat(p + partSuffix); !os.IsNotExist(err) {
		t.Error("SweepParts should remove part files")
	}
}

func TestDiskStore_ReadMeta(t *testing.T) {
	store := setupDiskStore(t)

	if _, err := store.ReadMeta("p1"); !errors.Is(err, ErrMetaMiss) {
		t.Errorf("Expected ErrMetaMiss, got %v", err)
	}

	if _, err := store.Put(context.Background(), MetaKey("p1"), strings.NewReader(`{"brand":"acme","images":3}`)); err != nil {
		t.Fatalf("Put meta failed: %v", err)
	}

	meta, err := store.ReadMeta("p1")
	if err != nil {
		t.Fatalf("ReadMeta failed: %v", err)
	}
	if meta["brand"] != "acme" {
		t.Errorf("meta brand = %v, want acme", meta["brand"])
	}

	// Sidecar lives at the product root, next to the folders.
	want := filepath.Join(store.Root(), "p1", "meta.json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("meta.json not at product root: %v", err)
	}
}

func TestDiskStore_ReadMeta_Corrupt(t *testing.T) {
	store := setupDiskStore(t)

	if _, err := store.Put(context.Background(), MetaKey("p1"), strings.NewReader("not-json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.ReadMeta("p1"); !errors.Is(err, ErrMetaMiss) {
		t.Errorf("Corrupt sidecar should read as miss, got %v", err)
	}
}

func TestDiskStore_RemoveProductAndClear(t *testing.T) {
	store := setupDiskStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		key := Key{ProductID: id, Folder: "detail", Filename: "0.jpg"}
		if _, err := store.Put(ctx, key, strings.NewReader("data")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := store.RemoveProduct("p1"); err != nil {
		t.Fatalf("RemoveProduct failed: %v", err)
	}
	products, err := store.Products()
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if len(products) != 1 || products[0] != "p2" {
		t.Errorf("Products after remove = %v, want [p2]", products)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	products, err = store.Products()
	if err != nil {
		t.Fatalf("Products after clear failed: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("Products after clear = %v, want empty", products)
	}

	// Root must exist again, ready for the next batch.
	if _, err := os.Stat(store.Root()); err != nil {
		t.Errorf("Clear must recreate the root: %v", err)
	}
}

func TestDiskStore_Usage(t *testing.T) {
	store := setupDiskStore(t)
	ctx := context.Background()

	puts := []struct {
		key  Key
		data string
	}{
		{Key{ProductID: "p1", Folder: "detail", Filename: "0.jpg"}, "aaaa"},
		{Key{ProductID: "p1", Folder: "detail", Filename: "1.jpg"}, "bbbbbb"},
		{Key{ProductID: "p2", Folder: "main", Filename: "0.jpg"}, "cc"},
	}
	for _, p := range puts {
		if _, err := store.Put(ctx, p.key, strings.NewReader(p.data)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	products, files, bytes, err := store.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if products != 2 {
		t.Errorf("products = %d, want 2", products)
	}
	if files != 3 {
		t.Errorf("files = %d, want 3", files)
	}
	if bytes != 12 {
		t.Errorf("bytes = %d, want 12", bytes)
	}
}
