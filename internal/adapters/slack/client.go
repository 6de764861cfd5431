package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

const defaultBaseURL = "https://slack.com/api"

const historyPageLimit = 200

// Client — минимальный клиент Slack Web API: список каналов, история и
// отправка сообщений.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

var _ domain.SlackGateway = (*Client)(nil)

// NewClient создаёт клиента Web API.
func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
	}
}

type apiResponse struct {
	OK               bool             `json:"ok"`
	Error            string           `json:"error,omitempty"`
	Channels         []channelPayload `json:"channels,omitempty"`
	Messages         []EventBody      `json:"messages,omitempty"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type channelPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	NumMembers int    `json:"num_members"`
}

// ListChannels возвращает каналы, доступные боту, без архивных.
func (c *Client) ListChannels(ctx context.Context) ([]domain.ChannelInfo, error) {
	var channels []domain.ChannelInfo
	cursor := ""
	for {
		params := url.Values{
			"exclude_archived": {"true"},
			"types":            {"public_channel,private_channel"},
			"limit":            {strconv.Itoa(historyPageLimit)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp apiResponse
		if err := c.call(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		for _, ch := range resp.Channels {
			channels = append(channels, domain.ChannelInfo{
				ID:          ch.ID,
				Name:        ch.Name,
				IsPrivate:   ch.IsPrivate,
				MemberCount: ch.NumMembers,
			})
		}
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// FetchHistory возвращает сообщения канала за интервал [oldest, latest),
// включая ответы в тредах. Системные и ботовые сообщения пропускаются.
func (c *Client) FetchHistory(ctx context.Context, channelID string, oldest, latest time.Time) ([]domain.Message, error) {
	var messages []domain.Message
	cursor := ""
	for {
		params := url.Values{
			"channel": {channelID},
			"oldest":  {formatTS(oldest)},
			"latest":  {formatTS(latest)},
			"limit":   {strconv.Itoa(historyPageLimit)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp apiResponse
		if err := c.call(ctx, "conversations.history", params, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Messages {
			if msg, ok := c.toMessage(raw, channelID); ok {
				messages = append(messages, msg)
			}
			if raw.ThreadTS != "" && raw.ThreadTS == raw.TS {
				replies, err := c.fetchReplies(ctx, channelID, raw.ThreadTS)
				if err != nil {
					return nil, err
				}
				messages = append(messages, replies...)
			}
		}
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return messages, nil
		}
	}
}

func (c *Client) fetchReplies(ctx context.Context, channelID, threadTS string) ([]domain.Message, error) {
	params := url.Values{
		"channel": {channelID},
		"ts":      {threadTS},
		"limit":   {strconv.Itoa(historyPageLimit)},
	}
	var resp apiResponse
	if err := c.call(ctx, "conversations.replies", params, &resp); err != nil {
		return nil, err
	}
	var replies []domain.Message
	for i, raw := range resp.Messages {
		// первый элемент — родительское сообщение треда
		if i == 0 {
			continue
		}
		if msg, ok := c.toMessage(raw, channelID); ok {
			replies = append(replies, msg)
		}
	}
	return replies, nil
}

func (c *Client) toMessage(raw EventBody, channelID string) (domain.Message, bool) {
	if _, skip := skippedSubtypes[raw.Subtype]; skip || raw.BotID != "" || raw.TS == "" {
		return domain.Message{}, false
	}
	posted, err := ParseTS(raw.TS)
	if err != nil {
		return domain.Message{}, false
	}
	return domain.Message{
		ID:        channelID + ":" + raw.TS,
		ChannelID: channelID,
		AuthorID:  raw.User,
		Text:      raw.Text,
		PostedAt:  posted,
		ThreadID:  raw.ThreadTS,
	}, true
}

// PostMessage отправляет сообщение в канал, при необходимости — в тред.
func (c *Client) PostMessage(ctx context.Context, channelID, text, threadID string) error {
	payload := map[string]string{
		"channel": channelID,
		"text":    text,
	}
	if threadID != "" {
		payload["thread_ts"] = threadID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat.postMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("slack", "chat.postMessage", channelID, start, err)
		return fmt.Errorf("slack: do request: %w", err)
	}
	defer resp.Body.Close()
	var parsed apiResponse
	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err == nil && !parsed.OK {
		err = fmt.Errorf("slack: %s", parsed.Error)
	}
	metrics.ObserveNetworkRequest("slack", "chat.postMessage", channelID, start, err)
	return err
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out *apiResponse) error {
	if c.token == "" {
		return fmt.Errorf("slack: bot token is empty")
	}
	endpoint := c.baseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("slack", method, "api", start, err)
		return fmt.Errorf("slack: do request: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ObserveNetworkRequest("slack", method, "api", start, err)
		return fmt.Errorf("slack: decode response: %w", err)
	}
	if !out.OK {
		err = fmt.Errorf("slack: %s: %s", method, out.Error)
		metrics.ObserveNetworkRequest("slack", method, "api", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("slack", method, "api", start, nil)
	return nil
}

func formatTS(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}
