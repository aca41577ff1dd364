package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	// ErrInvalidArchive is returned when the archive cannot be read as zip.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrUnsafeEntry is returned for entries that would land outside the
	// extraction directory.
	ErrUnsafeEntry = errors.New("unsafe archive entry")
)

// ExtractZip unpacks archivePath into destDir and returns the number of
// regular files written.
func ExtractZip(archivePath, destDir string) (int, error) {
	// A non-nil reader with an error flags insecure entry names; those are
	// rejected per entry below.
	r, err := zip.OpenReader(archivePath)
	if r == nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, f := range r.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return written, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		if err := extractFile(f, target); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

func entryPath(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrInvalidArchive, f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if err := copyEntry(dst, src, f.Name); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

// copyEntry copies one entry. Only failures reading src carry
// ErrInvalidArchive; write failures are local I/O errors.
func copyEntry(dst io.Writer, src io.Reader, name string) error {
	_, err := io.Copy(dst, archiveReader{src})
	if err == nil {
		return nil
	}
	var rerr archiveReadError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: read %s: %v", ErrInvalidArchive, name, rerr.err)
	}
	return fmt.Errorf("write %s: %w", name, err)
}

// archiveReader tags errors from the decompressing side of a copy so
// they can be told apart from errors writing the extracted file.
type archiveReader struct {
	r io.Reader
}

func (a archiveReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err != nil && err != io.EOF {
		err = archiveReadError{err}
	}
	return n, err
}

type archiveReadError struct {
	err error
}

func (e archiveReadError) Error() string { return e.err.Error() }

func (e archiveReadError) Unwrap() error { return e.err }
