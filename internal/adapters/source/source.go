// Package source resolves submission and ground-truth refs into bytes. A ref
// is either a local path or an http(s) URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/scorer/internal/apperr"
)

// Default resolution bounds.
const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 100 << 20

	uploadPrefix = "api/file/"
	userAgent    = "scorer/1.0"
)

// Reader reads the content behind a ref.
type Reader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Router reads local refs from disk and remote refs over HTTP.
type Router struct {
	root     string
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
}

// New creates a Router with configuration options.
func New(opts ...Option) *Router {
	r := &Router{
		timeout:  defaultTimeout,
		maxBytes: defaultMaxBytes,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsRemote reports whether ref is fetched over HTTP.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Read dispatches on the ref scheme.
func (r *Router) Read(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.New(apperr.KindResolution, "source", "empty ref")
	}
	if IsRemote(ref) {
		return r.fetch(ctx, ref)
	}
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindResolution, "source.local", err)
		}
		ref = u.Path
	}
	return r.readLocal(ctx, ref)
}

// LocalPath maps ref to a path on disk, rejecting refs outside the root.
func (r *Router) LocalPath(ref string) (string, error) {
	if r.root == "" {
		return filepath.Clean(ref), nil
	}
	root, err := filepath.Abs(r.root)
	if err != nil {
		return "", apperr.Wrap(apperr.KindResolution, "source.local", err)
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(ref, "/"), uploadPrefix)
	p := filepath.Join(root, filepath.FromSlash(rel))
	if filepath.IsAbs(ref) && within(root, filepath.Clean(ref)) {
		p = filepath.Clean(ref)
	}
	if !within(root, p) {
		return "", apperr.New(apperr.KindResolution, "source.local", "ref %q escapes the upload root", ref)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *Router) readLocal(ctx context.Context, ref string) ([]byte, error) {
	const op = "source.local"
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, op, err)
	}

	p, err := r.LocalPath(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.New(apperr.KindResolution, op, "file %q not found", ref)
		}
		return nil, apperr.Wrap(apperr.KindResolution, op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResolution, op, err)
	}
	if info.IsDir() {
		return nil, apperr.New(apperr.KindResolution, op, "%q is a directory", ref)
	}
	if info.Size() > r.maxBytes {
		return nil, apperr.New(apperr.KindResolution, op, "file %q is %d bytes, limit %d", ref, info.Size(), r.maxBytes)
	}
	return r.readBounded(op, f)
}

func (r *Router) fetch(ctx context.Context, ref string) ([]byte, error) {
	const op = "source.http"
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, http.NoBody)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResolution, op, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, apperr.New(apperr.KindResolution, op, "GET %s: status %d", redact(ref), resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, apperr.New(apperr.KindResolution, op, "GET %s: %d bytes, limit %d", redact(ref), resp.ContentLength, r.maxBytes)
	}

	data, err := r.readBounded(op, resp.Body)
	if err != nil && ctx.Err() != nil {
		return nil, classifyFetchErr(ctx, op, err)
	}
	return data, err
}

func (r *Router) readBounded(op string, rd io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, r.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResolution, op, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, apperr.New(apperr.KindResolution, op, "content exceeds %d bytes", r.maxBytes)
	}
	return data, nil
}

func classifyFetchErr(ctx context.Context, op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return apperr.New(apperr.KindTimeout, op, "fetch timed out: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.KindTimeout, op, "fetch cancelled: %v", err)
	}
	return apperr.Wrap(apperr.KindResolution, op, err)
}

// redact drops the query string, which often carries signed tokens.
func redact(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

var _ Reader = (*Router)(nil)

// String implements fmt.Stringer for logs.
func (r *Router) String() string {
	return fmt.Sprintf("source(root=%q timeout=%s max=%d)", r.root, r.timeout, r.maxBytes)
}
