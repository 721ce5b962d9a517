package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semsolver/source/weburl"
)

// Default limits.
const (
	DefaultMaxSize   = 4 << 20
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "semsolver/1.0 (+https://github.com/c360studio/semsolver)"
)

var (
	// ErrOutsideRoot is returned for paths that resolve outside the fetcher root.
	ErrOutsideRoot = errors.New("path outside source root")

	// ErrTooLarge is returned when content exceeds the size limit.
	ErrTooLarge = errors.New("content too large")

	// ErrNotRegular is returned for directories and other non-regular files.
	ErrNotRegular = errors.New("not a regular file")
)

// Fetcher reads local files confined to a root directory and public https
// pages. HTML pages are reduced to markdown.
type Fetcher struct {
	root      string
	maxSize   int64
	userAgent string
	client    *http.Client
	validate  func(string) error
	converter *Converter
	logger    *slog.Logger
	now       func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRoot confines local reads to dir. Relative paths are resolved against it.
func WithRoot(dir string) FetcherOption {
	return func(f *Fetcher) {
		f.root = dir
	}
}

// WithMaxSize caps the bytes read per document.
func WithMaxSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithUserAgent sets the User-Agent for web fetches.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithHTTPClient replaces the guarded client. The replacement is used as is.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithURLValidator replaces weburl.ValidateURL as the pre-request check.
func WithURLValidator(fn func(string) error) FetcherOption {
	return func(f *Fetcher) {
		f.validate = fn
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher rooted at the working directory unless
// WithRoot says otherwise.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		root:      ".",
		maxSize:   DefaultMaxSize,
		userAgent: DefaultUserAgent,
		validate:  weburl.ValidateURL,
		converter: NewConverter(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = weburl.NewClient(DefaultTimeout)
	}
	return f
}

// IsURL reports whether location names a web page rather than a file.
func IsURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Fetch reads location, a path or an http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsURL(location) {
		return f.fetchURL(ctx, location)
	}
	return f.fetchFile(location)
}

// Resolve maps path to an absolute path under the root.
func (f *Fetcher) Resolve(path string) (string, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	// Follow symlinks when the target exists so a link cannot leave the root.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

func (f *Fetcher) fetchFile(location string) (*Document, error) {
	abs, err := f.Resolve(location)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", location, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, location)
	}
	if info.Size() > f.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, location, info.Size(), f.maxSize)
	}

	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	defer file.Close()

	content, err := f.readLimited(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}

	f.logger.Debug("Source file read", "path", abs, "bytes", len(content))

	return &Document{
		Location:    location,
		Path:        abs,
		Kind:        KindFile,
		Content:     string(content),
		ContentType: contentTypeForPath(abs),
		Hash:        ContentHash(content),
		Size:        int64(len(content)),
		FetchedAt:   f.now(),
	}, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, location string) (*Document, error) {
	if f.validate != nil {
		if err := f.validate(location); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", weburl.Host(location), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d: %s", weburl.Host(location), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", weburl.Host(location), err)
	}

	final := location
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	doc := &Document{
		Location:    location,
		Path:        final,
		Kind:        KindURL,
		ContentType: resp.Header.Get("Content-Type"),
		Hash:        ContentHash(body),
		Size:        int64(len(body)),
		FetchedAt:   f.now(),
	}

	if isHTML(doc.ContentType) {
		pageURL, _ := url.Parse(final)
		converted, err := f.converter.Convert(body, pageURL)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", weburl.Host(location), err)
		}
		doc.Title = converted.Title
		doc.Content = converted.Markdown
	} else {
		doc.Content = string(body)
	}

	f.logger.Debug("Source page fetched",
		"host", weburl.Host(final),
		"content_type", doc.ContentType,
		"bytes", doc.Size,
		"title", doc.Title)

	return doc, nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w (exceeds %d bytes)", ErrTooLarge, f.maxSize)
	}
	return body, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "text/x-python"
	case ".md", ".markdown":
		return "text/markdown"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}
