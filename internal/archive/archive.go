// Package archive streams entries out of zip and tar.gz archives.
//
// Both walkers hand each entry's contents to a callback and never hold more
// than one entry in memory. A single unreadable entry is reported through
// onErr and skipped; only archive-level failures (missing file, corrupt
// central directory, broken gzip stream) abort the walk.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// EntryFunc receives one archive entry: its name within the archive and its
// full contents. Returning an error aborts the walk.
type EntryFunc func(name string, data []byte) error

// ErrFunc is called once per skipped entry.
type ErrFunc func(name string, err error)

// WalkZip streams every regular file in the zip at path through fn.
// Returns the number of entries handed to fn.
func WalkZip(path string, fn EntryFunc, onErr ErrFunc) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	processed := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || hidden(f.Name) {
			continue
		}

		data, err := readZipEntry(f)
		if err != nil {
			onErr(f.Name, err)
			continue
		}

		if err := fn(f.Name, data); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return data, nil
}

// WalkTarGz streams every regular .json file in the gzipped tar at path
// through fn. Returns the number of entries handed to fn.
func WalkTarGz(path string, fn EntryFunc, onErr ErrFunc) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read gzip %s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	processed := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return processed, nil
		}
		if err != nil {
			// The tar stream itself is broken; nothing after this point is
			// recoverable.
			return processed, fmt.Errorf("read tar %s: %w", path, err)
		}

		if hdr.Typeflag != tar.TypeReg || hidden(hdr.Name) {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(hdr.Name), ".json") {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			onErr(hdr.Name, fmt.Errorf("read entry: %w", err))
			continue
		}

		if err := fn(hdr.Name, data); err != nil {
			return processed, err
		}
		processed++
	}
}

// hidden reports whether any path element starts with a dot (metadata
// entries like .DS_Store or __MACOSX resource forks).
func hidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") || part == "__MACOSX" {
			return true
		}
	}
	return false
}
