package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/samhoang/ccx/internal/errors"
)

type entry struct {
	name    string
	body    string
	mode    os.FileMode
	symlink bool
}

func buildZip(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		mode := e.mode
		if mode == 0 {
			mode = 0644
		}
		if e.symlink {
			mode = os.ModeSymlink | 0777
		}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTarGz(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.mode != 0 {
			hdr.Mode = int64(e.mode)
		}
		if e.symlink {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.body
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.symlink {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestExtractStripsSharedTopDirectory(t *testing.T) {
	entries := []entry{
		{name: "lint-helper-1.0.0/extension.json", body: `{"name":"lint"}`},
		{name: "lint-helper-1.0.0/bin/run.sh", body: "#!/bin/sh\n", mode: 0755},
		{name: "lint-helper-1.0.0/README.md", body: "# lint"},
	}

	for name, data := range map[string][]byte{
		"zip":    buildZip(t, entries),
		"tar.gz": buildTarGz(t, entries),
	} {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			format, err := DetectFormat("asset", data)
			require.NoError(t, err)

			res, err := Extract(data, format, dest)
			require.NoError(t, err)
			assert.Equal(t, 3, res.Files)
			assert.Equal(t, Checksum(data), res.Checksum)

			got, err := os.ReadFile(filepath.Join(dest, "extension.json"))
			require.NoError(t, err)
			assert.Equal(t, `{"name":"lint"}`, string(got))

			info, err := os.Stat(filepath.Join(dest, "bin", "run.sh"))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode()&0100, "executable bit kept")
		})
	}
}

func TestExtractKeepsRootLevelFiles(t *testing.T) {
	data := buildZip(t, []entry{
		{name: "extension.json", body: "{}"},
		{name: "src/index.js", body: "x"},
	})
	dest := t.TempDir()

	_, err := Extract(data, FormatZip, dest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "extension.json"))
	assert.FileExists(t, filepath.Join(dest, "src", "index.js"))
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, bad := range []string{"../evil.sh", "../../root/.ssh/authorized_keys", "/etc/passwd", `..\evil.bat`} {
		t.Run(bad, func(t *testing.T) {
			entries := []entry{{name: "ok.txt", body: "fine"}, {name: bad, body: "pwned"}}

			for format, data := range map[Format][]byte{
				FormatZip:   buildZip(t, entries),
				FormatTarGz: buildTarGz(t, entries),
			} {
				parent := t.TempDir()
				dest := filepath.Join(parent, "ext")

				_, err := Extract(data, format, dest)
				assert.ErrorIs(t, err, cerrors.ErrUnsafePath, "format %s", format)
				assert.NoFileExists(t, filepath.Join(parent, "evil.sh"))
			}
		})
	}
}

func TestExtractRejectsLinks(t *testing.T) {
	entries := []entry{{name: "link", body: "/etc/passwd", symlink: true}}

	for format, data := range map[Format][]byte{
		FormatZip:   buildZip(t, entries),
		FormatTarGz: buildTarGz(t, entries),
	} {
		_, err := Extract(data, format, t.TempDir())
		assert.ErrorIs(t, err, cerrors.ErrUnsafePath, "format %s", format)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Format
		wantErr bool
	}{
		{"x.bin", []byte("PK\x03\x04rest"), FormatZip, false},
		{"x.bin", []byte{0x1f, 0x8b, 0x08}, FormatTarGz, false},
		{"ext.zip", nil, FormatZip, false},
		{"ext.tgz", nil, FormatTarGz, false},
		{"ext.tar.gz", nil, FormatTarGz, false},
		{"ext.rar", []byte("Rar!"), "", true},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.name, tt.data)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestCommonTopDir(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{[]string{"a/", "a/x", "a/b/y"}, "a"},
		{[]string{"a/x", "b/y"}, ""},
		{[]string{"x", "a/y"}, ""},
		{[]string{"only.txt"}, ""},
		{[]string{"./a/x", "./a/y"}, "a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commonTopDir(tt.names), "%v", tt.names)
	}
}
