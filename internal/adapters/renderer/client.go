package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

// Client обращается к внешнему сервису рендеринга документов. Сервис —
// чёрный ящик: на вход структурированный текст сводки, на выход handle
// готового документа.
type Client struct {
	http    *http.Client
	baseURL string
}

var _ domain.Renderer = (*Client)(nil)

// NewClient создаёт клиента рендерера.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type renderRequest struct {
	SummaryID    string    `json:"summary_id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	MessageCount int       `json:"message_count"`
	Channels     []string  `json:"channels,omitempty"`
}

type renderResponse struct {
	Handle string `json:"handle"`
}

// Render отправляет сводку на рендеринг и возвращает handle документа.
func (c *Client) Render(ctx context.Context, summary domain.Summary) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("renderer: base url is empty")
	}
	payload := renderRequest{
		SummaryID:    summary.ID,
		Type:         string(summary.Type),
		Title:        fmt.Sprintf("%s Summary — %s", summary.Type, summary.RangeStart.UTC().Format("2006-01-02")),
		Body:         summary.BodyText,
		RangeStart:   summary.RangeStart,
		RangeEnd:     summary.RangeEnd,
		MessageCount: summary.MessageCount,
		Channels:     summary.ChannelIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("renderer: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/reports", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("renderer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("renderer", "render", summary.ID, start, err)
		return "", fmt.Errorf("renderer: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err = fmt.Errorf("renderer: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		metrics.ObserveNetworkRequest("renderer", "render", summary.ID, start, err)
		return "", err
	}
	var parsed renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ObserveNetworkRequest("renderer", "render", summary.ID, start, err)
		return "", fmt.Errorf("renderer: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("renderer", "render", summary.ID, start, nil)
	if parsed.Handle == "" {
		return "", errors.New("renderer: пустой handle в ответе")
	}
	return parsed.Handle, nil
}

// Fetch возвращает байты готового документа по handle.
func (c *Client) Fetch(ctx context.Context, handle string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, errors.New("renderer: base url is empty")
	}
	endpoint := c.baseURL + "/v1/reports/" + url.PathEscape(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("renderer: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("renderer", "fetch", handle, start, err)
		return nil, fmt.Errorf("renderer: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err = fmt.Errorf("renderer: fetch status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("renderer", "fetch", handle, start, err)
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest("renderer", "fetch", handle, start, err)
	if err != nil {
		return nil, fmt.Errorf("renderer: read response: %w", err)
	}
	return data, nil
}
