package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

// HTTPClient habla con una API OpenAI-compatible: chat completions en modo
// streaming y no streaming.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey, model string, log *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *HTTPClient) buildRequest(opts Options, prompt string, stream bool) ([]byte, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   stream,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return json.Marshal(req)
}

// Generate pide una respuesta completa, con reintentos acotados ante
// errores transitorios de transporte.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	body, err := c.buildRequest(opts, prompt, false)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var out string
	err = retryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.client.Do(req)
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
			if c.logger != nil {
				c.logger.Warn("llm error response",
					zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
			}
			return fmt.Errorf("llm http error: status=%d", resp.StatusCode)
		}

		var cr chatResponse
		if err := json.Unmarshal(respBody, &cr); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if cr.Error != nil {
			return fmt.Errorf("llm api error: %s", cr.Error.Message)
		}
		if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
			return fmt.Errorf("llm empty response")
		}
		out = cr.Choices[0].Message.Content
		return nil
	}, isTransient)
	return out, err
}

// Stream abre un stream SSE y entrega los deltas por el canal. El canal se
// cierra al terminar; un error de lectura llega como ultimo Chunk.
func (c *HTTPClient) Stream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
	body, err := c.buildRequest(opts, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if c.logger != nil {
			c.logger.Warn("llm stream error response",
				zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status=%d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("llm http error: status=%d", resp.StatusCode)
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}
			var delta streamDelta
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				continue
			}
			if len(delta.Choices) == 0 {
				continue
			}
			if content := delta.Choices[0].Delta.Content; content != "" {
				select {
				case out <- Chunk{Content: content}:
				case <-ctx.Done():
					return
				}
			}
			if delta.Choices[0].FinishReason != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- Chunk{Err: fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)}
		}
	}()
	return out, nil
}

// Reachable hace un GET liviano contra el upstream para el health check.
// Un 4xx cuenta como alcanzable: el servidor respondio.
func (c *HTTPClient) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
	return resp.StatusCode < 500
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, domain.ErrUpstreamUnavailable)
}
