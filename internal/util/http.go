package util

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/ratelimit"
)

// DownloadOptions tunes DownloadFile.
type DownloadOptions struct {
	// RateBytes caps the body read rate in bytes per second. Zero disables throttling.
	RateBytes int64
	// Progress, if set, is called after every chunk with the bytes read so far
	// and the Content-Length (-1 when unknown).
	Progress func(read, total int64)
}

// DownloadFile executes a pre-built HTTP request and returns the body bytes.
// It handles response closing and non-200 status codes.
// The caller is responsible for creating the request (including context and headers).
func DownloadFile(client *http.Client, req *http.Request, opts DownloadOptions) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read some of the body for context on error
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: req.URL.String(), Status: resp.Status, Body: string(bodyBytes)}
	}

	var body io.Reader = resp.Body
	if opts.RateBytes > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(opts.RateBytes), opts.RateBytes)
		body = ratelimit.Reader(body, bucket)
	}
	if opts.Progress != nil {
		body = &progressReader{r: body, total: resp.ContentLength, fn: opts.Progress}
	}

	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, nil
}

// StatusError is returned by DownloadFile for non-200 responses.
type StatusError struct {
	URL    string
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status '%s' fetching %s: %s", e.Status, e.URL, e.Body)
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    func(read, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}

// DefaultHTTPClient creates an http.Client with the given timeout
// (120s when timeout is zero).
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
