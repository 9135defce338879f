package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"companion-llm/internal/domain"
)

// HTTPEmbedder llama al endpoint /embeddings de una API OpenAI-compatible
// y normaliza los vectores para similitud coseno.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
}

func NewHTTPEmbedder(baseURL, apiKey, model string, dim int) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts, Dimensions: e.dim})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var vectors [][]float32
	err = retryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status=%d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("embedding http error: status=%d", resp.StatusCode)
		}

		var er embeddingResponse
		if err := json.Unmarshal(respBody, &er); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if er.Error != nil {
			return fmt.Errorf("embedding api error: %s", er.Error.Message)
		}
		if len(er.Data) != len(texts) {
			return fmt.Errorf("embedding count mismatch: got %d want %d", len(er.Data), len(texts))
		}
		vectors = vectors[:0]
		for _, d := range er.Data {
			if e.dim > 0 && len(d.Embedding) != e.dim {
				return fmt.Errorf("embedding dimension mismatch: got %d want %d", len(d.Embedding), e.dim)
			}
			vectors = append(vectors, Normalize(d.Embedding))
		}
		return nil
	}, isTransient)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Normalize escala el vector a norma 1; deja el vector cero intacto.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
