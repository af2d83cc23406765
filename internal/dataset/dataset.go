// Package dataset loads a directory-backed image collection.
//
// Items are ordered by path, and the positional index of an item is the
// integer id under which its vector is stored. The dataset is loaded once
// at process start and read-only afterwards.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors for dataset loading.
var (
	// ErrDuplicateImageID is returned when two items derive the same image id.
	ErrDuplicateImageID = errors.New("duplicate image id")

	// ErrIndexOutOfRange is returned when a stored point id does not map to
	// any dataset item.
	ErrIndexOutOfRange = errors.New("index out of dataset range")
)

// imageExtensions are the file extensions treated as dataset items.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// Item is one record of the source collection: the binary image content and
// the path it was loaded from. Immutable after load.
type Item struct {
	// Path is the item's source path relative to the dataset root.
	Path string

	// ImageID is the identifier derived from Path (basename without
	// extension). Unique within a dataset; uniqueness is enforced at load.
	ImageID string

	// Data is the raw image content.
	Data []byte
}

// Dataset is an ordered, immutable image collection. Item order is the path
// sort order, so the same directory always yields the same id space.
type Dataset struct {
	items []Item
	byID  map[string]int
}

// DeriveImageID derives an item identifier from its path: the basename with
// the extension stripped. DeriveImageID("dataset/dog/123.jpg") == "123".
func DeriveImageID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load walks dir recursively and reads every image file into memory.
//
// Items are sorted by relative path before ids are assigned, so the id space
// is deterministic across runs. Two items deriving the same ImageID make the
// lookup from search results ambiguous, so Load fails with
// ErrDuplicateImageID instead of ingesting a silently broken collection.
// An empty or image-free directory yields a valid empty dataset.
func Load(dir string) (*Dataset, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking dataset dir %s: %w", dir, err)
	}

	sort.Strings(paths)

	ds := &Dataset{
		items: make([]Item, 0, len(paths)),
		byID:  make(map[string]int, len(paths)),
	}
	for i, rel := range paths {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return nil, fmt.Errorf("reading dataset item %s: %w", rel, err)
		}

		id := DeriveImageID(rel)
		if prev, ok := ds.byID[id]; ok {
			return nil, fmt.Errorf("%w: %q derived from both %s and %s",
				ErrDuplicateImageID, id, ds.items[prev].Path, rel)
		}

		ds.items = append(ds.items, Item{Path: rel, ImageID: id, Data: data})
		ds.byID[id] = i
	}

	return ds, nil
}

// Len returns the number of items.
func (d *Dataset) Len() int {
	return len(d.items)
}

// Item returns the item at positional index i.
func (d *Dataset) Item(i int) (Item, error) {
	if i < 0 || i >= len(d.items) {
		return Item{}, fmt.Errorf("%w: index %d, dataset size %d", ErrIndexOutOfRange, i, len(d.items))
	}
	return d.items[i], nil
}

// Items returns all items in id order. The returned slice must not be
// mutated.
func (d *Dataset) Items() []Item {
	return d.items
}

// IndexOf returns the positional index for an image id.
func (d *Dataset) IndexOf(imageID string) (int, bool) {
	i, ok := d.byID[imageID]
	return i, ok
}
