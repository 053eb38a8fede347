package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cairnlabs/cairn/pkg/types"
)

var (
	// Bucket names
	bucketFiles    = []byte("files")
	bucketFileInfo = []byte("fileinfo")
	bucketKV       = []byte("kv")
)

// openTimeout bounds how long bolt.Open waits for the file lock. A
// second process hitting a held lock fails fast instead of hanging.
const openTimeout = 1 * time.Second

// Overlay is one storage layer backed by a BoltDB file. Reads consult
// the local layer first and fall through to the base when one is
// configured; writes and deletes touch the local layer only, so
// deleting a local entry reveals the base entry again.
type Overlay struct {
	db   *bolt.DB
	base *Overlay
	path string
}

// Open opens (creating if necessary) the overlay backed by dbPath.
// A nil base makes this a root layer (stable).
func Open(dbPath string, base *Overlay) (*Overlay, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open overlay %s: %w", dbPath, err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketFiles, bucketFileInfo, bucketKV}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Overlay{db: db, base: base, path: dbPath}, nil
}

// IsLocked reports whether err came from another process holding the
// overlay's file lock.
func IsLocked(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}

// Close closes the backing database
func (o *Overlay) Close() error {
	return o.db.Close()
}

// Path returns the backing file path
func (o *Overlay) Path() string {
	return o.path
}

// Name returns the layer name derived from the backing file stem.
func (o *Overlay) Name() string {
	return strings.TrimSuffix(filepath.Base(o.path), ".db")
}

// Base returns the layer reads fall through to, or nil for a root layer.
func (o *Overlay) Base() *Overlay {
	return o.base
}

// normalizePath folds the accepted root spellings ("", "/", ".") to ""
// and strips the leading slash from absolute-style paths. Paths that
// escape the root after cleaning are invalid.
func normalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" || p == "." {
		return "", nil
	}
	p = strings.TrimPrefix(p, "/")
	clean := path.Clean(p)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", types.ErrInvalidPath, p)
	}
	return clean, nil
}

// ReadFile returns the bytes at p, consulting the local layer first
// and falling through to the base on a miss.
func (o *Overlay) ReadFile(p string) ([]byte, error) {
	key, err := normalizePath(p)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = o.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// Copy since BoltDB data is only valid during the transaction
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrStorage, p, err)
	}
	if data != nil {
		return data, nil
	}
	if o.base != nil {
		return o.base.ReadFile(key)
	}
	return nil, fmt.Errorf("%w: %s", types.ErrNotFound, p)
}

// ReadLocal returns the bytes at p from this layer only, never
// consulting the base. ErrNotFound means the path is absent here even
// if a base layer has it.
func (o *Overlay) ReadLocal(p string) ([]byte, error) {
	key, err := normalizePath(p)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = o.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get([]byte(key))
		if v == nil {
			return nil
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrStorage, p, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, p)
	}
	return data, nil
}

// WriteFile stores data at p in the local layer only
func (o *Overlay) WriteFile(p string, data []byte) error {
	key, err := normalizePath(p)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: cannot write to root", types.ErrInvalidPath)
	}

	info, err := json.Marshal(types.FileInfo{
		Size:    int64(len(data)),
		ModTime: time.Now().UTC(),
		IsFile:  true,
	})
	if err != nil {
		return err
	}

	err = o.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFiles).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketFileInfo).Put([]byte(key), info)
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", types.ErrStorage, p, err)
	}
	return nil
}

// DeleteFile removes the local entry at p. Base entries are never
// touched, so a path that also exists in the base becomes visible
// again after the delete.
func (o *Overlay) DeleteFile(p string) error {
	key, err := normalizePath(p)
	if err != nil {
		return err
	}

	err = o.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFiles).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketFileInfo).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", types.ErrStorage, p, err)
	}
	return nil
}

// ReadDir returns the sorted immediate children of p in the merged
// view. Local names shadow base names; directories are implicit from
// the paths beneath them.
func (o *Overlay) ReadDir(p string) ([]string, error) {
	dir, err := normalizePath(p)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	if err := o.collectChildren(dir, names); err != nil {
		return nil, err
	}
	if len(names) == 0 && dir != "" {
		// Distinguish an empty directory from a missing one
		exists, err := o.Exists(dir)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, p)
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// collectChildren adds the immediate child names under dir from this
// layer and every base layer below it.
func (o *Overlay) collectChildren(dir string, names map[string]bool) error {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			if rest == "" {
				continue
			}
			if idx := strings.IndexByte(rest, '/'); idx >= 0 {
				names[rest[:idx]] = true
			} else {
				names[rest] = true
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: readdir %s: %v", types.ErrStorage, dir, err)
	}
	if o.base != nil {
		return o.base.collectChildren(dir, names)
	}
	return nil
}

// Stat returns the merged file info for p. Directories are synthesized
// from the presence of paths beneath them.
func (o *Overlay) Stat(p string) (types.FileInfo, error) {
	key, err := normalizePath(p)
	if err != nil {
		return types.FileInfo{}, err
	}
	if key == "" {
		return types.FileInfo{IsDir: true}, nil
	}

	info, found, err := o.statFile(key)
	if err != nil {
		return types.FileInfo{}, err
	}
	if found {
		return info, nil
	}

	isDir, err := o.hasPrefix(key + "/")
	if err != nil {
		return types.FileInfo{}, err
	}
	if isDir {
		return types.FileInfo{IsDir: true}, nil
	}
	return types.FileInfo{}, fmt.Errorf("%w: %s", types.ErrNotFound, p)
}

// statFile looks up the stored file info for an exact path, falling
// through to the base.
func (o *Overlay) statFile(key string) (types.FileInfo, bool, error) {
	var info types.FileInfo
	var found bool
	err := o.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFileInfo).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &info)
	})
	if err != nil {
		return types.FileInfo{}, false, fmt.Errorf("%w: stat %s: %v", types.ErrStorage, key, err)
	}
	if found {
		return info, true, nil
	}
	if o.base != nil {
		return o.base.statFile(key)
	}
	return types.FileInfo{}, false, nil
}

// hasPrefix reports whether any file path in the merged view starts
// with the given prefix.
func (o *Overlay) hasPrefix(prefix string) (bool, error) {
	var found bool
	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		k, _ := c.Seek([]byte(prefix))
		found = k != nil && strings.HasPrefix(string(k), prefix)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	if found {
		return true, nil
	}
	if o.base != nil {
		return o.base.hasPrefix(prefix)
	}
	return false, nil
}

// Exists reports whether p names a file or directory in the merged view.
func (o *Overlay) Exists(p string) (bool, error) {
	_, err := o.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// LocalPaths returns every file path physically stored in this layer,
// sorted. Base entries are excluded; this is the set a merge promotes.
func (o *Overlay) LocalPaths() ([]string, error) {
	var paths []string
	err := o.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns every file path visible in the merged view, sorted.
func (o *Overlay) Paths() ([]string, error) {
	seen := make(map[string]bool)
	for layer := o; layer != nil; layer = layer.base {
		local, err := layer.LocalPaths()
		if err != nil {
			return nil, err
		}
		for _, p := range local {
			seen[p] = true
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Walk visits every file in the merged view in sorted path order,
// reading each through the layer chain. A non-nil error from fn stops
// the walk and is returned.
func (o *Overlay) Walk(fn func(path string, data []byte) error) error {
	paths, err := o.Paths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := o.ReadFile(p)
		if err != nil {
			return err
		}
		if err := fn(p, data); err != nil {
			return err
		}
	}
	return nil
}

// KVGet returns the value stored under key in this layer. KV entries
// never fall through to the base; each layer's namespace is its own.
func (o *Overlay) KVGet(key string) ([]byte, error) {
	var data []byte
	err := o.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return nil
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kv get %s: %v", types.ErrStorage, key, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: key %s", types.ErrNotFound, key)
	}
	return data, nil
}

// KVSet stores value under key in this layer
func (o *Overlay) KVSet(key string, value []byte) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: kv set %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

// KVDelete removes key from this layer
func (o *Overlay) KVDelete(key string) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: kv delete %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

// KVList returns the sorted keys in this layer starting with prefix.
func (o *Overlay) KVList(prefix string) ([]string, error) {
	var keys []string
	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kv list %s: %v", types.ErrStorage, prefix, err)
	}
	return keys, nil
}
