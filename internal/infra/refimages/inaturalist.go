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
	"github.com/bryanwahyu/pestwatch/internal/logger"
)

const (
	DefaultINaturalistURL = "https://api.inaturalist.org"
	inatSource            = "iNaturalist"
	inatPerPage           = 5
	inatExtraPhotos       = 3
)

var sizeSuffix = regexp.MustCompile(`(?i)/(square|small|original|large)\.(jpg|jpeg|png)`)

// MediumURL rewrites the first size suffix of an iNaturalist photo URL to
// the medium variant, keeping the extension.
func MediumURL(u string) string {
	loc := sizeSuffix.FindStringSubmatchIndex(u)
	if loc == nil {
		return u
	}
	ext := u[loc[4]:loc[5]]
	return u[:loc[0]] + "/medium." + ext + u[loc[1]:]
}

// INaturalist is the community-verified primary catalog.
type INaturalist struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Log        logger.Logger
}

type inatPhoto struct {
	URL       string `json:"url"`
	MediumURL string `json:"medium_url"`
}

func (p *inatPhoto) best() string {
	if p == nil {
		return ""
	}
	if p.MediumURL != "" {
		return p.MediumURL
	}
	return p.URL
}

type inatTaxon struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	PreferredCommonName string     `json:"preferred_common_name"`
	DefaultPhoto        *inatPhoto `json:"default_photo"`
}

func (t inatTaxon) label() string {
	if t.PreferredCommonName != "" {
		return t.PreferredCommonName
	}
	return t.Name
}

type inatAutocomplete struct {
	Results []inatTaxon `json:"results"`
}

type inatDetail struct {
	Results []struct {
		TaxonPhotos []struct {
			Photo *inatPhoto `json:"photo"`
		} `json:"taxon_photos"`
	} `json:"results"`
}

func (c *INaturalist) Name() string { return inatSource }

func (c *INaturalist) base() string {
	if c.BaseURL == "" {
		return DefaultINaturalistURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// Search resolves term to taxa, takes each default photo and, while fewer
// than three images are collected, up to three extra photos per taxon.
func (c *INaturalist) Search(ctx context.Context, term string) ([]detection.ReferenceImage, error) {
	q := url.Values{}
	q.Set("q", term)
	q.Set("per_page", fmt.Sprint(inatPerPage))

	var ac inatAutocomplete
	if err := getJSON(ctx, httpClient(c.HTTPClient), c.Timeout, c.base()+"/v1/taxa/autocomplete?"+q.Encode(), &ac); err != nil {
		return nil, fmt.Errorf("inaturalist autocomplete %q: %w", term, err)
	}

	var out []detection.ReferenceImage
	seen := make(map[string]struct{})
	add := func(raw, desc string) {
		if len(out) >= maxImages {
			return
		}
		u := MediumURL(raw)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, detection.ReferenceImage{URL: u, Description: desc, Source: inatSource})
	}

	for _, taxon := range ac.Results {
		add(taxon.DefaultPhoto.best(), taxon.label()+" - verified by iNaturalist community")

		if taxon.ID != 0 && len(out) < maxImages {
			for _, p := range c.taxonPhotos(ctx, taxon.ID) {
				add(p, taxon.label()+" reference photo")
			}
		}
		if len(out) >= maxImages {
			break
		}
	}
	return out, nil
}

// taxonPhotos failures are logged and yield nothing.
func (c *INaturalist) taxonPhotos(ctx context.Context, id int64) []string {
	var d inatDetail
	u := fmt.Sprintf("%s/v1/taxa/%d?locale=en", c.base(), id)
	if err := getJSON(ctx, httpClient(c.HTTPClient), c.Timeout, u, &d); err != nil {
		logOrNop(c.Log).Warn("inaturalist taxon photos failed", logger.Int64("taxon_id", id), logger.Error(err))
		return nil
	}
	if len(d.Results) == 0 {
		return nil
	}
	photos := d.Results[0].TaxonPhotos
	if len(photos) > inatExtraPhotos {
		photos = photos[:inatExtraPhotos]
	}
	var urls []string
	for _, tp := range photos {
		if u := tp.Photo.best(); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func logOrNop(l logger.Logger) logger.Logger {
	if l == nil {
		return logger.NewNop()
	}
	return l
}
