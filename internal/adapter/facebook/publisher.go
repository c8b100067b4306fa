// Package facebook posts weather alerts to a Facebook page via the Graph
// API feed edge.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

// DefaultGraphURL is the production Graph API endpoint.
const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// maxMessageLen keeps posts readable; the Graph API limit is far larger.
const maxMessageLen = 2000

// Publisher posts formatted alerts to one page.
type Publisher struct {
	baseURL     string
	pageID      string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewPublisher(baseURL, pageID, accessToken string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	return &Publisher{
		baseURL:     baseURL,
		pageID:      pageID,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// PublishAlert posts the alert to the page feed and returns the post id.
func (p *Publisher) PublishAlert(ctx context.Context, a *domain.WeatherAlert) (string, error) {
	form := url.Values{
		"message":      {FormatMessage(a)},
		"access_token": {p.accessToken},
	}

	u := fmt.Sprintf("%s/%s/feed", p.baseURL, p.pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("page feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("graph API error: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("graph API returned no post id")
	}
	return out.ID, nil
}

// FormatMessage renders the alert as a page post: headline, the effective
// window, the description, and the call to action.
func FormatMessage(a *domain.WeatherAlert) string {
	var b strings.Builder

	if a.Headline != "" {
		b.WriteString(a.Headline)
	} else {
		b.WriteString(a.Event)
	}
	b.WriteString("\n")

	if a.Expires != nil {
		fmt.Fprintf(&b, "\nIn effect until %s.\n", a.Expires.Local().Format("Mon Jan 2 3:04 PM MST"))
	}

	if a.Description != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(a.Description))
		b.WriteString("\n")
	}
	if a.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(a.Instruction))
		b.WriteString("\n")
	}

	msg := b.String()
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen-1] + "…"
	}
	return msg
}
