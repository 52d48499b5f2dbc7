package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/storyreel/stitcher/internal/logging"
)

const maxRedirects = 5

// Fetcher downloads source clips. It never retries: a failed clip fails the
// whole request.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a fetcher. A zero timeout leaves requests bounded only
// by their context; a zero maxBytes disables the size limit.
func NewFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
			Timeout: timeout,
		},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch GETs u and writes the full body to dest. Redirects are followed only
// while they stay within policy.
func (f *Fetcher) Fetch(ctx context.Context, policy *OriginPolicy, u *url.URL, dest string) (int64, error) {
	client := *f.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if !policy.Allowed(req.URL) {
			return fmt.Errorf("redirect to disallowed host %q", req.URL.Hostname())
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, &Error{Kind: KindDownload, Message: "could not build clip request", Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, &Error{Kind: KindDownload, Message: "clip download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &Error{
			Kind:       KindDownload,
			Message:    fmt.Sprintf("clip download returned HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return 0, &Error{Kind: KindDownload, Message: fmt.Sprintf("clip exceeds %d bytes", f.maxBytes), StatusCode: resp.StatusCode}
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, &Error{Kind: KindInternal, Message: "could not create clip file", Err: err}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, copyErr := io.Copy(out, body)
	closeErr := out.Close()

	if err := errors.Join(copyErr, closeErr); err != nil {
		return n, &Error{Kind: KindDownload, Message: "clip download interrupted", Err: err}
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return n, &Error{Kind: KindDownload, Message: fmt.Sprintf("clip exceeds %d bytes", f.maxBytes), StatusCode: resp.StatusCode}
	}

	f.logger.Debug("clip downloaded", "url", logging.SanitizeURL(u.String()), "bytes", n)
	return n, nil
}
