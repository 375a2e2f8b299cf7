// Package blob stores uploaded document files on local disk. Files are named
// after their content checksum, so identical uploads share one file.
package blob

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/stash/internal/apperr"
)

// ErrTooLarge is returned by Put when the content exceeds the size limit.
var ErrTooLarge = errors.New("blob: file too large")

// Object describes a stored file.
type Object struct {
	Name        string `json:"name"`
	URL         string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"fileSize"`
	ContentType string `json:"fileType"`
	Checksum    string `json:"checksum"`
}

// Store is a directory of content-addressed files.
type Store struct {
	root      string
	urlPrefix string
	maxBytes  int64
}

// NewStore creates the store directory if needed. urlPrefix is prepended to
// file names to build Object.URL; maxBytes <= 0 disables the size limit.
func NewStore(root, urlPrefix string, maxBytes int64) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &Store{
		root:      abs,
		urlPrefix: strings.TrimRight(urlPrefix, "/") + "/",
		maxBytes:  maxBytes,
	}, nil
}

// MaxBytes returns the configured size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Put stores the content read from r. originalName is kept as the display
// name and supplies the extension of the stored file.
func (s *Store) Put(originalName string, r io.Reader) (*Object, error) {
	if s.maxBytes > 0 {
		r = io.LimitReader(r, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	display := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(originalName, `\`, "/")))
	if display == "/" || display == "." {
		display = "file"
	}
	ext := strings.ToLower(filepath.Ext(display))
	if !validExt(ext) {
		ext = ""
	}

	digest := sha256.Sum256(data)
	sum := hex.EncodeToString(digest[:])
	name := sum[:32] + ext
	abs := filepath.Join(s.root, name)

	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		if err := s.write(abs, data); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("blob: stat: %w", err)
	}

	return &Object{
		Name:        name,
		URL:         s.urlPrefix + name,
		FileName:    display,
		Size:        int64(len(data)),
		ContentType: detectType(data, ext),
		Checksum:    sum,
	}, nil
}

// Open returns the stored file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	abs, err := s.safeName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("file")
	}
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", name, err)
	}
	return f, nil
}

// safeName accepts a plain file name only and resolves it under the root.
func (s *Store) safeName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", apperr.Invalid("name", "invalid file name")
	}
	return filepath.Join(s.root, name), nil
}

// write stores data atomically: tmp file, fsync, rename.
func (s *Store) write(abs string, data []byte) error {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("blob: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("blob: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("blob: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blob: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("blob: rename: %w", err)
	}
	success = true
	return nil
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// detectType sniffs the content and falls back to the extension when the
// sniffer only recognises generic text or binary.
func detectType(data []byte, ext string) string {
	sniffed := http.DetectContentType(data)
	generic := sniffed == "application/octet-stream" || strings.HasPrefix(sniffed, "text/plain")
	if generic && ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return sniffed
}
