// Package replygen is the JSON-over-HTTP client for the external reply
// generation service.
package replygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
)

const DefaultURL = "http://127.0.0.1:8091"

type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{BaseURL: url, http: &http.Client{Timeout: timeout}}
}

type historyEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type generateRequest struct {
	ContactName string                   `json:"contact_name"`
	History     []historyEntry           `json:"history"`
	Context     models.GenerationContext `json:"context,omitempty"`
}

type generateResponse struct {
	Replies []string `json:"replies"`
}

// Generate asks the service for reply strings. An empty slice is a valid
// answer meaning "do not reply"; transport and non-200 responses are errors.
func (c *Client) Generate(ctx context.Context, contactName string, history []source.ChatMessage, gctx models.GenerationContext) ([]string, error) {
	reqBody := generateRequest{ContactName: contactName, Context: gctx}
	for _, m := range history {
		reqBody.History = append(reqBody.History, historyEntry{Sender: string(m.Sender), Content: m.Content})
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reply generator returned status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Replies, nil
}
