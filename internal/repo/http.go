package repo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// fetcher performs authenticated GET requests for remote repos.
type fetcher struct {
	client *http.Client
	usr    string
	psw    string
}

// get streams the body of url into w. It returns the HTTP status so
// callers can tell a missing file from a failed request.
func (f *fetcher) get(ctx context.Context, url string, w io.Writer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", url, err)
	}
	if f.usr != "" || f.psw != "" {
		req.SetBasicAuth(f.usr, f.psw)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("requesting %s: unexpected status %s", url, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return resp.StatusCode, fmt.Errorf("reading %s: %w", url, err)
	}
	return resp.StatusCode, nil
}

// getFile downloads url into a new temporary file in dir and returns its
// path.
func (f *fetcher) getFile(ctx context.Context, url, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".download-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}
	defer tmp.Close()

	if _, err := f.get(ctx, url, tmp); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
