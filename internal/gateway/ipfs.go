package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrEmptyBlobID      = errors.New("empty blob id")
	ErrImageUnavailable = errors.New("certificate image unavailable")
)

// Gateway reads certificate images from a public content-addressed gateway.
// Nothing is authenticated and nothing is verified beyond what the gateway does.
type Gateway struct {
	base   string
	client *http.Client
}

func New(baseURL string, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Gateway{base: baseURL, client: client}
}

// ImageURL is the public URL of the blob, e.g. https://ipfs.io/ipfs/<blobID>.
// Path-style ids such as <cid>/cert.png keep their separators.
func (g *Gateway) ImageURL(blobID string) string {
	if blobID == "" {
		return ""
	}
	return g.base + EscapePath(blobID)
}

// EscapePath escapes each "/"-separated segment of a blob id.
func EscapePath(blobID string) string {
	segs := strings.Split(blobID, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// Image is an open gateway response. Callers must Close it.
type Image struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

func (i *Image) Close() error { return i.Body.Close() }

func (g *Gateway) Fetch(ctx context.Context, blobID string) (*Image, error) {
	if blobID == "" {
		return nil, ErrEmptyBlobID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.ImageURL(blobID), nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: gateway returned %s", ErrImageUnavailable, resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Image{Body: resp.Body, ContentType: ct, ContentLength: resp.ContentLength}, nil
}
