package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

// submitResponse mirrors the body of POST /v1/detections.
type submitResponse struct {
	Detection         *detection.Detection      `json:"detection"`
	Result            *detection.AnalysisResult `json:"result"`
	ReportRecommended bool                      `json:"reportRecommended"`
	Error             *struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	} `json:"error"`
}

type detectionResponse struct {
	detection.Detection
	UploadedImageURL string `json:"uploadedImageUrl"`
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// submit uploads one photo. A failure record is returned together with an
// error carrying the server's message.
func (c *client) submit(ctx context.Context, name string, image []byte, fields map[string]string) (*submitResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/detections", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "pestctl")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Detection == nil {
		return nil, fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out.Error != nil {
		return &out, fmt.Errorf("%s (%s, HTTP %d)", out.Error.Error, out.Error.Kind, resp.StatusCode)
	}
	return &out, nil
}

func (c *client) get(ctx context.Context, id detection.ID) (*detectionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/detections/"+string(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get detection %s: HTTP %d", id, resp.StatusCode)
	}
	var out detectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// waitForReferences polls until reference images are attached or ctx ends.
// The last fetched record is returned either way.
func (c *client) waitForReferences(ctx context.Context, id detection.ID, every time.Duration) (*detectionResponse, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last *detectionResponse
	for {
		d, err := c.get(ctx, id)
		if err == nil {
			last = d
			if len(d.ReferenceImages) > 0 {
				return d, nil
			}
		}
		select {
		case <-ctx.Done():
			if last != nil {
				return last, nil
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
