package objstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore keeps objects on disk under root/objects. Public-read markers
// live under root/acl and in-flight writes under root/tmp so neither shows
// up in listings.
type LocalStore struct {
	root       string
	basePrefix string
	signer     Signer
}

func NewLocalStore(root, basePrefix string, signer Signer) *LocalStore {
	return &LocalStore{root: root, basePrefix: basePrefix, signer: signer}
}

func (s *LocalStore) objectPath(fullKey string) string {
	return filepath.Join(s.root, "objects", filepath.FromSlash(fullKey))
}

func (s *LocalStore) aclPath(fullKey string) string {
	return filepath.Join(s.root, "acl", filepath.FromSlash(fullKey))
}

func validKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.New("invalid key")
		}
	}
	return nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body []byte, public bool) error {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	if err := validKey(fullKey); err != nil {
		return err
	}
	p := s.objectPath(fullKey)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmpDir := filepath.Join(s.root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	// Atomic write: readers see the old or the new body, never a partial one.
	tmp := filepath.Join(tmpDir, uuid.NewString())
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	acl := s.aclPath(fullKey)
	if !public {
		if err := os.Remove(acl); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(acl), 0o755); err != nil {
		return err
	}
	return os.WriteFile(acl, nil, 0o644)
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	if err := validKey(fullKey); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.objectPath(fullKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Public reports whether key was last written with public-read access.
func (s *LocalStore) Public(ctx context.Context, key string) (bool, error) {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	if err := validKey(fullKey); err != nil {
		return false, err
	}
	_, err := os.Stat(s.aclPath(fullKey))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	fullPrefix := JoinKey(s.basePrefix, strings.TrimLeft(prefix, "/"))
	objects := filepath.Join(s.root, "objects")

	var out []string
	err := filepath.WalkDir(objects, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(objects, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, fullPrefix) {
			out = append(out, trimBase(s.basePrefix, key))
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	if err := validKey(fullKey); err != nil {
		return err
	}
	// Deleting an absent object succeeds, as it does on OSS and S3.
	if err := os.Remove(s.objectPath(fullKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(s.aclPath(fullKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Sign(key, method string, ttl time.Duration) (string, error) {
	return s.signer.Sign(JoinKey(s.basePrefix, key), method, ttl)
}
