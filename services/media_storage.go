package services

import (
	"os"
	"path/filepath"

	"github.com/rehearsal-ai/backend/errs"
)

// MediaStorage writes media artifacts under a root directory, one
// subtree per session: {root}/{session_id}/{kind}/{name}.
type MediaStorage struct {
	root string
}

func NewMediaStorage(root string) *MediaStorage {
	return &MediaStorage{root: root}
}

func (s *MediaStorage) Root() string {
	return s.root
}

// Write stores one artifact and returns its path. Failures carry the
// communication kind: they are storage problems, not database ones.
func (s *MediaStorage) Write(sessionID, kind, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, sessionID, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.Wrapf(errs.KindCommunication, err, "media storage cannot create directory %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errs.Wrapf(errs.KindCommunication, err, "media storage cannot write %s", path)
	}
	return path, nil
}

// Remove deletes one artifact. It is used to roll back a write whose
// database row could not be persisted; a missing file is not an error.
func (s *MediaStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrapf(errs.KindCommunication, err, "media storage cannot remove %s", path)
	}
	return nil
}
