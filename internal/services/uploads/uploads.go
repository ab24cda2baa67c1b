// Package uploads stores declaration photos on disk and hands back the
// opaque references declarations carry.
package uploads

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/logger"
)

// PublicPrefix is the URL path photos are served under
const PublicPrefix = "/uploads/"

// Store writes uploaded photos into a directory
type Store struct {
	dir      string
	maxBytes int64
	maxFiles int
	log      *logrus.Entry
}

// New creates the upload directory if needed
func New(cfg config.UploadConfig, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	s := &Store{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		maxFiles: cfg.MaxFiles,
		log:      logger.Or(log).Component("uploads"),
	}
	if s.maxBytes <= 0 {
		s.maxBytes = 5 << 20
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 5
	}
	return s, nil
}

// Dir is the directory photos are written to
func (s *Store) Dir() string { return s.dir }

// MaxBytes is the per-file size limit
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// MaxFiles is the per-request file count limit
func (s *Store) MaxFiles() int { return s.maxFiles }

// SaveMultipart stores every file of a multipart form field. Nothing is kept
// if one of the files is rejected.
func (s *Store) SaveMultipart(files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, apperrors.ValidationFields("no file uploaded", map[string]string{"photos": "is required"})
	}
	if len(files) > s.maxFiles {
		return nil, apperrors.ValidationFields("too many files",
			map[string]string{"photos": fmt.Sprintf("at most %d files", s.maxFiles)})
	}

	refs := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.remove(refs)
			return nil, err
		}
		ref, err := s.Save(f)
		f.Close()
		if err != nil {
			s.remove(refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Save stores one image and returns its reference
func (s *Store) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxBytes {
		return "", apperrors.ValidationFields("file too large",
			map[string]string{"photos": fmt.Sprintf("at most %d bytes per file", s.maxBytes)})
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", apperrors.ValidationFields("only images are accepted",
			map[string]string{"photos": "unsupported type " + mt.String()})
	}

	name := "photo_" + uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{"file": name, "type": mt.String(), "size": len(data)}).Info("photo stored")
	return PublicPrefix + name, nil
}

func (s *Store) remove(refs []string) {
	for _, ref := range refs {
		name := strings.TrimPrefix(ref, PublicPrefix)
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.WithError(err).WithField("file", name).Warn("failed to remove photo")
		}
	}
}
