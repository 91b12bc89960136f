package update

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// ProgressFunc receives the bytes transferred so far and the expected total
// (0 when unknown).
type ProgressFunc func(downloaded, total int64)

// Fetcher installs a release asset at a target path.
type Fetcher interface {
	Fetch(ctx context.Context, rel Release, target string, progress ProgressFunc) (digest string, err error)
}

// Downloader streams release assets with resty.
type Downloader struct {
	client *resty.Client
	logger *zap.Logger
}

// NewDownloader creates a downloader. timeout bounds one whole transfer.
func NewDownloader(timeout time.Duration, logger *zap.Logger) *Downloader {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "ControlBridge-Updater/1.0").
		SetHeader("Accept", "application/octet-stream")

	return &Downloader{client: client, logger: logger}
}

// Fetch downloads rel into a temporary file next to target, decompressing
// .gz and .zst assets, then fsyncs and renames it onto target. On any error
// target is left untouched. The returned digest is the BLAKE3 hex digest of
// the installed bytes.
func (d *Downloader) Fetch(ctx context.Context, rel Release, target string, progress ProgressFunc) (string, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rel.URL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode())
	}

	total := resp.RawResponse.ContentLength
	if total <= 0 {
		total = rel.Size
	}
	if total < 0 {
		total = 0
	}

	counter := &countingReader{r: body, total: total, progress: progress}
	if progress != nil {
		progress(0, total)
	}

	src, err := decompress(assetName(rel), counter)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := createTemp(target)
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		discard(tmp)
		return "", fmt.Errorf("download interrupted after %d bytes: %w", counter.n, err)
	}
	// Trailing bytes a decompressor left unread still count toward the total
	if _, err := io.Copy(io.Discard, counter); err != nil {
		discard(tmp)
		return "", fmt.Errorf("download interrupted after %d bytes: %w", counter.n, err)
	}
	if total > 0 && counter.n != total {
		discard(tmp)
		return "", fmt.Errorf("download truncated: got %d of %d bytes", counter.n, total)
	}

	perm := fs.FileMode(0o755)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	}
	if err := commit(tmp, target, perm); err != nil {
		return "", err
	}

	d.logger.Info("Release installed",
		zap.String("version", rel.Version),
		zap.String("target", target),
		zap.Int64("bytes", counter.n),
	)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func assetName(rel Release) string {
	if rel.AssetName != "" {
		return rel.AssetName
	}
	if u, err := url.Parse(rel.URL); err == nil {
		return u.Path
	}
	return rel.URL
}

func decompress(name string, r io.Reader) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip asset: %w", err)
		}
		return zr, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd asset: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

type countingReader struct {
	r        io.Reader
	n        int64
	total    int64
	progress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.progress != nil {
			c.progress(c.n, c.total)
		}
	}
	return n, err
}
