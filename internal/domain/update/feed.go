package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var (
	// ErrFeedNotConfigured is returned when no release feed URL is set.
	ErrFeedNotConfigured = errors.New("release feed not configured")
	// ErrNoAsset is returned when the latest release has no matching asset.
	ErrNoAsset = errors.New("release has no matching asset")
)

// maxFeedSize bounds the release document read from the feed.
const maxFeedSize = 4 << 20

// Release is the newest release advertised by the feed.
type Release struct {
	Version     string
	PublishedAt time.Time
	AssetName   string
	URL         string
	// Size is the advertised asset size; 0 when unknown.
	Size int64
}

// Feed reports the latest release.
type Feed interface {
	Latest(ctx context.Context) (Release, error)
}

type releaseDocument struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	} `json:"assets"`
}

// GitHubFeed reads a GitHub-style "latest release" document.
type GitHubFeed struct {
	url    string
	asset  string
	client *retryablehttp.Client
}

// NewGitHubFeed creates a feed for url. asset selects the download by name;
// empty picks the first asset. retries bounds transport-level retries within
// one fetch.
func NewGitHubFeed(url, asset string, retries int, logger *zap.Logger) *GitHubFeed {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = leveledLogger{logger.Named("feed").Sugar()}

	return &GitHubFeed{url: url, asset: asset, client: client}
}

// Latest fetches and decodes the release document.
func (f *GitHubFeed) Latest(ctx context.Context) (Release, error) {
	if f.url == "" {
		return Release{}, ErrFeedNotConfigured
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Release{}, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("fetching release feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("fetching release feed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return Release{}, fmt.Errorf("reading release feed: %w", err)
	}

	var doc releaseDocument
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return Release{}, fmt.Errorf("parsing release feed: %w", err)
	}

	for _, a := range doc.Assets {
		if f.asset != "" && a.Name != f.asset {
			continue
		}
		return Release{
			Version:     doc.TagName,
			PublishedAt: doc.PublishedAt,
			AssetName:   a.Name,
			URL:         a.BrowserDownloadURL,
			Size:        a.Size,
		}, nil
	}
	return Release{}, fmt.Errorf("%w: %q in %s", ErrNoAsset, f.asset, doc.TagName)
}

// leveledLogger routes retryablehttp's logging into zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
