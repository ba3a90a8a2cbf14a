// Package archive unpacks extension release archives (zip, tar.gz) without
// letting any entry escape the destination directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cerrors "github.com/samhoang/ccx/internal/errors"
	"github.com/samhoang/ccx/internal/guard"
)

// Format is an archive container format
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

// Limits on what one archive may unpack to
const (
	MaxFiles     = 5000
	MaxTotalSize = 200 << 20
)

var (
	ErrUnknownFormat = errors.New("unrecognized archive format")
	ErrTooLarge      = errors.New("archive expands beyond size limits")
)

// Result describes a completed extraction
type Result struct {
	Files    int
	Bytes    int64
	Checksum string // sha256 of the archive bytes, hex
}

// Checksum returns the hex sha256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectFormat sniffs the archive type from its magic bytes, falling back to
// the file name.
func DetectFormat(name string, data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")), bytes.HasPrefix(data, []byte("PK\x05\x06")):
		return FormatZip, nil
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		return FormatTarGz, nil
	}

	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// Extract unpacks data into destDir. A single top-level directory shared by
// every entry (as in GitHub source archives) is stripped. Any entry that
// would land outside destDir, and any link entry, fails the whole
// extraction with cerrors.ErrUnsafePath.
func Extract(data []byte, format Format, destDir string) (*Result, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}

	x := &extractor{dest: destDir}
	var err error
	switch format {
	case FormatZip:
		err = x.zip(data)
	case FormatTarGz:
		err = x.tarGz(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Files: x.files, Bytes: x.written, Checksum: Checksum(data)}, nil
}

type extractor struct {
	dest    string
	files   int
	written int64
}

// target maps an archive entry name to its destination path
func (x *extractor) target(name, topDir string) (string, bool, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "./")
	if topDir != "" {
		name = strings.TrimPrefix(name, topDir+"/")
	}
	if name == "" || name == topDir || strings.Trim(name, "/") == "" {
		return "", false, nil
	}
	if !guard.IsSafeExtractionPath(name, x.dest) {
		return "", false, &cerrors.PathError{Path: name, Op: "extract", Err: cerrors.ErrUnsafePath}
	}
	return filepath.Join(x.dest, filepath.FromSlash(name)), true, nil
}

func (x *extractor) writeFile(path string, r io.Reader, mode os.FileMode) error {
	x.files++
	if x.files > MaxFiles {
		return fmt.Errorf("%w: more than %d files", ErrTooLarge, MaxFiles)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if mode&0111 != 0 {
		perm = 0755
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	remaining := MaxTotalSize - x.written
	n, err := io.Copy(f, io.LimitReader(r, remaining+1))
	x.written += n
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if x.written > MaxTotalSize {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxTotalSize)
	}
	return nil
}

func linkError(name string) error {
	return &cerrors.PathError{Path: name, Op: "extract link", Err: cerrors.ErrUnsafePath}
}

func (x *extractor) zip(data []byte) error {
	// Insecure names are reported per entry below.
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	topDir := commonTopDir(names)

	for _, f := range r.File {
		if f.Mode()&os.ModeSymlink != 0 {
			return linkError(f.Name)
		}
		path, ok, err := x.target(f.Name, topDir)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = x.writeFile(path, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) tarGz(data []byte) error {
	// First pass collects names so the shared top directory is known
	// before anything is written.
	names, err := tarNames(data)
	if err != nil {
		return err
	}
	topDir := commonTopDir(names)

	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return err
		}

		switch header.Typeflag {
		case tar.TypeSymlink, tar.TypeLink:
			return linkError(header.Name)
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		}

		path, ok, err := x.target(header.Name, topDir)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.writeFile(path, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
}

func tarNames(data []byte) ([]string, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	var names []string
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, err
		}
		if header.Typeflag == tar.TypeXGlobalHeader || header.Typeflag == tar.TypeXHeader {
			continue
		}
		names = append(names, header.Name)
	}
}

// commonTopDir returns the first path segment when every entry lives under
// it, or "" when the archive has files at its root.
func commonTopDir(names []string) string {
	top := ""
	nested := false
	for _, n := range names {
		n = strings.TrimPrefix(strings.ReplaceAll(n, `\`, "/"), "./")
		first, rest, found := strings.Cut(n, "/")
		if first == "" || first == ".." {
			return ""
		}
		if top == "" {
			top = first
		} else if first != top {
			return ""
		}
		if !found {
			// A bare root entry is only fine if it is the directory itself.
			continue
		}
		if rest != "" {
			nested = true
		}
	}
	if !nested {
		return ""
	}
	return top
}
