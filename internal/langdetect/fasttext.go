package langdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"horse.fit/lingo/internal/breaker"
)

const DefaultFastTextEndpoint = "http://127.0.0.1:8846"

// FastTextClassifier calls a fastText model server (lid.176) over HTTP.
// Labels are passed through exactly as the server returns them.
type FastTextClassifier struct {
	predictURL string
	client     *http.Client
	breaker    *breaker.Breaker
}

func NewFastText(endpoint string, timeout time.Duration, b *breaker.Breaker) (*FastTextClassifier, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		trimmed = DefaultFastTextEndpoint
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FastTextClassifier{
		predictURL: trimmed + "/predict",
		client:     &http.Client{Timeout: timeout},
		breaker:    b,
	}, nil
}

func (c *FastTextClassifier) Name() string {
	return BackendFastText
}

func (c *FastTextClassifier) Labels() []string {
	return nil
}

// BreakerState reports the circuit breaker guarding the model server.
func (c *FastTextClassifier) BreakerState() string {
	return c.breaker.State()
}

type fastTextRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

type fastTextResponse struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

func (c *FastTextClassifier) Predict(ctx context.Context, text string) (Prediction, error) {
	// fastText predicts one line at a time.
	line := strings.Join(strings.Fields(text), " ")
	if line == "" {
		return Prediction{}, ErrUndetermined
	}

	body, err := json.Marshal(fastTextRequest{Text: line, K: 1})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal predict request: %w", err)
	}

	var parsed fastTextResponse
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build predict request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("send predict request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read predict response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("fasttext endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode predict response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Prediction{}, err
	}

	if len(parsed.Labels) == 0 || len(parsed.Probabilities) == 0 {
		return Prediction{}, ErrUndetermined
	}
	return Prediction{
		Label:       parsed.Labels[0],
		Probability: parsed.Probabilities[0],
	}, nil
}
