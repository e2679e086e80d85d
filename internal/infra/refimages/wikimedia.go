package refimages

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const (
	DefaultWikimediaURL = "https://commons.wikimedia.org"
	wikimediaSource     = "Wikimedia Commons"
	wikimediaMaxHits    = 2
	filePathBase        = "https://commons.wikimedia.org/wiki/Special:FilePath/"
)

var (
	photoExtensions = []string{".jpg", ".jpeg", ".png"}
	nonPhotoWords   = []string{
		"document", "report", "circular", "page", "cover", "historic",
		"archived", "pdf", "map", "diagram", "chart", "graph", "logo",
		"icon", "flag", "stamp", "distribution", "range",
	}
	fileExtension = regexp.MustCompile(`\.[^.]+$`)
)

// Wikimedia is the general-purpose secondary catalog. Only the file
// namespace is searched and anything that does not look like a photo is skipped.
type Wikimedia struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type wikimediaSearch struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

func (c *Wikimedia) Name() string { return wikimediaSource }

func (c *Wikimedia) Search(ctx context.Context, term string) ([]detection.ReferenceImage, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultWikimediaURL
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("list", "search")
	q.Set("srsearch", term)
	q.Set("srnamespace", "6")
	q.Set("srlimit", "10")
	q.Set("origin", "*")

	var res wikimediaSearch
	if err := getJSON(ctx, httpClient(c.HTTPClient), c.Timeout, strings.TrimRight(base, "/")+"/w/api.php?"+q.Encode(), &res); err != nil {
		return nil, fmt.Errorf("wikimedia search %q: %w", term, err)
	}

	var out []detection.ReferenceImage
	for _, item := range res.Query.Search {
		name := strings.TrimPrefix(item.Title, "File:")
		if !IsPhotoFile(name) {
			continue
		}
		desc := fileExtension.ReplaceAllString(strings.ReplaceAll(name, "_", " "), "")
		if r := []rune(desc); len(r) > 100 {
			desc = string(r[:100])
		}
		out = append(out, detection.ReferenceImage{
			URL:         filePathBase + url.PathEscape(name) + "?width=400",
			Description: desc,
			Source:      wikimediaSource,
		})
		if len(out) == wikimediaMaxHits {
			break
		}
	}
	return out, nil
}

// IsPhotoFile reports whether a Commons file name looks like a specimen photo.
func IsPhotoFile(name string) bool {
	lower := strings.ToLower(name)
	hasExt := false
	for _, ext := range photoExtensions {
		if strings.HasSuffix(lower, ext) {
			hasExt = true
			break
		}
	}
	if !hasExt {
		return false
	}
	for _, w := range nonPhotoWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}
