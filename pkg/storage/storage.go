package storage

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// maxNameLen caps sanitized identifiers so record directories stay portable.
const maxNameLen = 100

var unsafeRunes = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns an arbitrary record field into a filesystem-safe token:
// unsafe runs collapse to a single underscore, edges are trimmed, and the
// result is length-capped.
func SanitizeName(name string) string {
	s := unsafeRunes.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_.")
	if len(s) > maxNameLen {
		s = strings.TrimRight(s[:maxNameLen], "_.")
	}
	return s
}

// Store handles all on-disk record state. The filesystem is the sole source
// of truth for what has already been synchronized; there is no side index.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore creates a store rooted at root, creating the directory if needed.
// An unwritable root is a fatal configuration error.
func NewStore(fs afero.Fs, root string) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Probe writability up front so the failure happens at startup, not
	// mid-harvest.
	probe := filepath.Join(root, ".locharvest-write-probe")
	f, err := fs.Create(probe)
	if err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	f.Close()
	fs.Remove(probe)

	return &Store{fs: fs, root: root}, nil
}

// Fs exposes the underlying filesystem for collaborators that need to stat
// files the store wrote.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Root returns the output root directory.
func (s *Store) Root() string {
	return s.root
}

// RecordDir ensures the per-record directory exists and returns its path.
func (s *Store) RecordDir(identifier string) (string, error) {
	dir := filepath.Join(s.root, identifier)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create record directory: %w", err)
	}
	return dir, nil
}

// SaveFile streams r into path atomically: data lands in a temporary file
// that is renamed into place, so a killed process never leaves a truncated
// file visible under the final name. Returns the number of bytes written.
func (s *Store) SaveFile(path string, r io.Reader) (int64, error) {
	tempFile := path + ".tmp"
	out, err := s.fs.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		s.fs.Remove(tempFile)
		return 0, fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		s.fs.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := s.fs.Rename(tempFile, path); err != nil {
		s.fs.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// WriteResult says what WriteFileIfChanged did.
type WriteResult int

const (
	// WriteSkipped means the existing file already had identical content.
	WriteSkipped WriteResult = iota
	// WriteCreated means no file existed and one was written.
	WriteCreated
	// WriteUpdated means an existing file had different content and was replaced.
	WriteUpdated
)

// WriteFileIfChanged writes data to path unless compareExisting is set and
// the current content is byte-identical.
func (s *Store) WriteFileIfChanged(path string, data []byte, compareExisting bool) (WriteResult, error) {
	existed := false
	if compareExisting {
		current, err := afero.ReadFile(s.fs, path)
		if err == nil {
			existed = true
			if bytes.Equal(current, data) {
				return WriteSkipped, nil
			}
		} else if !os.IsNotExist(err) {
			return WriteSkipped, fmt.Errorf("failed to read existing file: %w", err)
		}
	} else if _, err := s.fs.Stat(path); err == nil {
		existed = true
	}

	if _, err := s.SaveFile(path, bytes.NewReader(data)); err != nil {
		return WriteSkipped, err
	}

	if existed {
		return WriteUpdated, nil
	}
	return WriteCreated, nil
}

// Exists reports whether path exists on the store's filesystem.
func (s *Store) Exists(path string) bool {
	_, err := s.fs.Stat(path)
	return err == nil
}

// Stat exposes os.FileInfo for path.
func (s *Store) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// FileSHA256 returns the hex sha256 digest of the file at path.
func (s *Store) FileSHA256(path string) (string, error) {
	return s.hashFile(path, sha256.New())
}

// FileMD5 returns the hex md5 digest of the file at path.
func (s *Store) FileMD5(path string) (string, error) {
	return s.hashFile(path, md5.New())
}

func (s *Store) hashFile(path string, h hash.Hash) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
