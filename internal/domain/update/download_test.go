package update

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

func assetServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// truncatingServer advertises size bytes, sends a prefix and drops the connection.
func truncatingServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.Write(bytes.Repeat([]byte("x"), size/4))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gzipped(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDownloaderFetch(t *testing.T) {
	binary := bytes.Repeat([]byte("tool-binary-"), 1000)

	tests := []struct {
		name    string
		asset   string
		payload []byte
	}{
		{"plain", "tool.exe", binary},
		{"gzip", "tool.exe.gz", gzipped(t, binary)},
		{"zstd", "tool.zst", zstded(t, binary)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := assetServer(t, tt.payload)
			target := filepath.Join(t.TempDir(), "tool.exe")

			var last, lastTotal int64
			progress := func(done, total int64) { last, lastTotal = done, total }

			d := NewDownloader(time.Minute, zap.NewNop())
			digest, err := d.Fetch(context.Background(), Release{AssetName: tt.asset, URL: srv.URL + "/" + tt.asset}, target, progress)
			require.NoError(t, err)

			got, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, binary, got)

			sum := blake3.Sum256(binary)
			assert.Equal(t, hex.EncodeToString(sum[:]), digest)
			assert.Equal(t, int64(len(tt.payload)), last)
			assert.Equal(t, int64(len(tt.payload)), lastTotal)
		})
	}
}

func TestDownloaderFetchFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o755))

	tests := []struct {
		name string
		url  func(t *testing.T) string
	}{
		{"mid-transfer", func(t *testing.T) string { return truncatingServer(t, 4096).URL }},
		{"http error", func(t *testing.T) string {
			srv := httptest.NewServer(http.NotFoundHandler())
			t.Cleanup(srv.Close)
			return srv.URL
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDownloader(time.Minute, zap.NewNop())
			_, err := d.Fetch(context.Background(), Release{URL: tt.url(t)}, target, nil)
			require.Error(t, err)

			got, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, "old", string(got))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file removed")
		})
	}
}
