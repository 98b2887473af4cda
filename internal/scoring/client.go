package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request asks the backend to score a transcript excerpt against the script
// gates for the given mode.
type Request struct {
	TranscriptExcerpt string `json:"transcript_excerpt"`
	CurrentGate       int    `json:"current_gate"`
	Mode              string `json:"mode"`
}

// GateScore is the similarity for one evaluated gate. The backend may score
// only a subset of gates per request.
type GateScore struct {
	Gate       int     `json:"gate"`
	Similarity float64 `json:"similarity"`
}

// Response is the backend's verdict. RecommendedGate is optional; when set it
// is a trusted override for the tracker's gate position.
type Response struct {
	Gates           []GateScore `json:"gates"`
	AdherenceScore  float64     `json:"adherence_score"`
	RecommendedGate *int        `json:"recommended_gate,omitempty"`
}

// Client calls the similarity-scoring backend over HTTP. The backend is
// opaque to this service; similarity computation lives entirely on its side.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    baseURL,
		APIKey:     apiKey,
	}
}

// Score submits one excerpt for scoring.
func (c *Client) Score(ctx context.Context, sreq Request) (Response, error) {
	if c.BaseURL == "" {
		return Response{}, fmt.Errorf("scoring base url missing")
	}
	endpoint := c.BaseURL + "/v1/score"

	reqBody, _ := json.Marshal(sreq)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Response{}, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("scoring error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var sresp Response
	if err := json.NewDecoder(resp.Body).Decode(&sresp); err != nil {
		return Response{}, err
	}
	return sresp, nil
}
