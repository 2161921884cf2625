package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/dns"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/negotiation"
)

const requestTimeout = 10 * time.Second

type RoomStatus struct {
	RoomID    string `json:"room_id"`
	PeerCount int    `json:"peer_count"`
	Available bool   `json:"available"`
}

type CreatedRoom struct {
	RoomID string `json:"room_id"`
	WsURL  string `json:"ws_url"`
}

type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client talks to the signaling server's REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the API rooted at baseURL, for example
// https://example.com/api.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{DialContext: dns.DialContext},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RoomStatus(ctx context.Context, roomID string) (*RoomStatus, error) {
	var status RoomStatus
	if err := c.do(ctx, http.MethodGet, "/room/"+url.PathEscape(roomID)+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) CreateRoom(ctx context.Context) (*CreatedRoom, error) {
	var room CreatedRoom
	if err := c.do(ctx, http.MethodPost, "/create-room", &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// StatusFetcher reports the occupancy of roomID to the negotiation machine.
func (c *Client) StatusFetcher(roomID string) negotiation.StatusFetcher {
	return negotiation.StatusFetcherFunc(func(ctx context.Context) (int, error) {
		status, err := c.RoomStatus(ctx, roomID)
		if err != nil {
			return 0, err
		}
		return status.PeerCount, nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
