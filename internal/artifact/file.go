package artifact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps every slot as a file under a root directory.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at root. The directory is created on the
// first Put.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the artifacts directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Location(key Key) string {
	return filepath.Join(s.root, key.FileName())
}

// Put writes blob to a temporary file and renames it over the slot.
func (s *FileStore) Put(ctx context.Context, key Key, blob []byte) error {
	if !key.Valid() {
		return errors.Wrapf(ErrUnknownKey, "%q", key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.MkdirAll(s.root, 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create artifacts root %s", s.root)
	}

	tmp, err := os.CreateTemp(s.root, "."+key.FileName()+".*")
	if err != nil {
		return errors.Wrapf(err, "unable to create temporary file for %s", key)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	_, err = tmp.Write(blob)
	if err != nil {
		tmp.Close() //nolint:errcheck,gosec

		return errors.Wrapf(err, "unable to write %s", key)
	}
	err = tmp.Close()
	if err != nil {
		return errors.Wrapf(err, "unable to close %s", key)
	}

	err = os.Rename(tmp.Name(), s.Location(key))
	if err != nil {
		return errors.Wrapf(err, "unable to move %s into place", key)
	}

	return nil
}

func (s *FileStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if !key.Valid() {
		return nil, errors.Wrapf(ErrUnknownKey, "%q", key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.Location(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s at %s", key, s.Location(key))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", key)
	}

	return blob, nil
}

var _ Store = (*FileStore)(nil)
