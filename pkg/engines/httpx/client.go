// Package httpx provides the shared HTTP client engine adapters use to talk
// to their upstreams. It handles the egress proxy selected per request by the
// processor, transparent zstd/gzip decompression, a stable User-Agent, and
// per-upstream connection caps.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/metisearch/metis/pkg/version"
)

type egressKey struct{}

// WithEgress returns a context that routes requests through the given proxy
// URL. The processor sets this per retry attempt to rotate egress identities.
func WithEgress(ctx context.Context, proxyURL string) context.Context {
	return context.WithValue(ctx, egressKey{}, proxyURL)
}

// EgressFromContext returns the egress proxy selected for this request.
func EgressFromContext(ctx context.Context) (string, bool) {
	proxyURL, ok := ctx.Value(egressKey{}).(string)
	return proxyURL, ok && proxyURL != ""
}

// NewClient builds an engine HTTP client. The timeout is a transport-level
// safety net only; the processor enforces the real per-engine timeout through
// the request context.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               proxyFromContext,
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &roundTripper{inner: transport},
	}
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	if proxyURL, ok := EgressFromContext(req.Context()); ok {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing egress proxy %q: %w", proxyURL, err)
		}
		return parsed, nil
	}
	return http.ProxyFromEnvironment(req)
}

type roundTripper struct {
	inner http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "metis/"+version.String)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "zstd, gzip")
	}

	resp, err := rt.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch resp.Header.Get("Content-Encoding") {
	case "zstd":
		reader, err := zstd.NewReader(resp.Body)
		if err != nil {
			if cerr := resp.Body.Close(); cerr != nil {
				err = fmt.Errorf("%w (also closing body: %v)", err, cerr)
			}
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		resp.Body = &decompressedBody{reader: reader.IOReadCloser(), original: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			if cerr := resp.Body.Close(); cerr != nil {
				err = fmt.Errorf("%w (also closing body: %v)", err, cerr)
			}
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		resp.Body = &decompressedBody{reader: reader, original: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}

	return resp, nil
}

type decompressedBody struct {
	reader   io.ReadCloser
	original io.ReadCloser
}

func (b *decompressedBody) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}

func (b *decompressedBody) Close() error {
	rerr := b.reader.Close()
	oerr := b.original.Close()
	if rerr != nil {
		return rerr
	}
	return oerr
}
