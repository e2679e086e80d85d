package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/species"
	"github.com/bryanwahyu/pestwatch/internal/infra/ai/openai"
)

type capturedRequest struct {
	Model               string `json:"model"`
	MaxTokens           int    `json:"max_tokens"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	ResponseFormat      struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name string `json:"name"`
		} `json:"json_schema"`
	} `json:"response_format"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, reply string, got *capturedRequest, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
}

func activeSpecies() []species.Species {
	return []species.Species{{
		CommonName:     "Queensland fruit fly",
		ScientificName: "Bactrocera tryoni",
		Detection:      species.Detection{AlertThreshold: 2, MatchingCriteria: []string{"Yellow scutellum"}},
		Display:        species.Display{IsActive: true},
	}}
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := openai.NewClient(openai.Config{APIKey: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, detection.ErrConfiguration)
}

func TestClassify_SendsImageAndSchema(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	var calls int32
	srv := newServer(t, `{"qflyLikelihood":"ALERT"}`, &got, &calls)
	defer srv.Close()

	c, err := openai.NewClient(openai.Config{APIKey: "test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	img := []byte{0xFF, 0xD8, 0xFF, 0x01}
	req := detection.NewClassificationRequest(img, detection.MIMEJPEG, detection.ModeBiosecurity, activeSpecies())
	text, err := c.Classify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, `{"qflyLikelihood":"ALERT"}`, text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "biosecurity_detection", got.ResponseFormat.JSONSchema.Name)
	assert.Equal(t, 2048, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, string(got.Messages[1].Content), "data:image/jpeg;base64,/9j/AQ==")
	assert.Contains(t, string(got.Messages[1].Content), "QUEENSLAND FRUIT FLY")
}

func TestClassify_ReasoningModelUsesCompletionTokens(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	var calls int32
	srv := newServer(t, `{}`, &got, &calls)
	defer srv.Close()

	c, err := openai.NewClient(openai.Config{APIKey: "test", Model: "o4-mini", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	req := detection.NewClassificationRequest([]byte{0x89}, detection.MIMEPNG, detection.ModeGeneral, nil)
	_, err = c.Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2048, got.MaxCompletionTokens)
	assert.Zero(t, got.MaxTokens)
	assert.Equal(t, "insect_identification", got.ResponseFormat.JSONSchema.Name)
}

func TestClassify_NoSpeciesSkipsCall(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	var calls int32
	srv := newServer(t, `{}`, &got, &calls)
	defer srv.Close()

	c, err := openai.NewClient(openai.Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	req := detection.NewClassificationRequest([]byte{0x89}, detection.MIMEPNG, detection.ModeBiosecurity, nil)
	_, err = c.Classify(context.Background(), req)
	assert.ErrorIs(t, err, detection.ErrNoTargetSpecies)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClassify_EmptyReply(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	var calls int32
	srv := newServer(t, "  ", &got, &calls)
	defer srv.Close()

	c, err := openai.NewClient(openai.Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	req := detection.NewClassificationRequest([]byte{0x89}, detection.MIMEPNG, detection.ModeGeneral, nil)
	_, err = c.Classify(context.Background(), req)
	assert.ErrorIs(t, err, detection.ErrMalformedModelOutput)
}
