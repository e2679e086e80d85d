// Package refimages finds illustrative photographs of a species in public
// image catalogs. Catalog failures only shrink the result set.
package refimages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const (
	defaultCatalogTimeout = 5 * time.Second
	userAgent             = "pestwatch/1.0 (+https://github.com/bryanwahyu/pestwatch)"
	maxBodyBytes          = 2 << 20
)

// Catalog is one searchable image source.
type Catalog interface {
	Name() string
	Search(ctx context.Context, term string) ([]detection.ReferenceImage, error)
}

// getJSON performs one GET bounded by timeout and decodes the body into out.
func getJSON(ctx context.Context, client *http.Client, timeout time.Duration, rawURL string, out any) error {
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
