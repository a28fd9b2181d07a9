// Package focalboard is a client for the Focalboard REST API v2, the board
// backend this service scaffolds and reconciles project boards on.
package focalboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the backend, with the status-specific
// guidance the operator needs.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// TransportError is a network-level failure: timeout, refused connection,
// or a body that could not be read. It is always a degraded result for the
// caller, never a crash.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("focalboard: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Config carries the connection settings for one backend.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to one Focalboard server. All methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the configured backend.
func NewClient(cfg Config, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any, out any) error {
	u := c.baseURL + "/api/v2" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return fmt.Errorf("focalboard: encode %s %s: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("focalboard: build %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// The backend's CSRF protection rejects requests without this header.
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read " + method + " " + endpoint, Err: err}
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
			return fmt.Errorf("focalboard: decode %s %s: %w", method, endpoint, err)
		}
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var msg string
	switch status {
	case http.StatusUnauthorized:
		msg = "authentication failed; check that the Focalboard token is valid and not expired"
	case http.StatusForbidden:
		msg = "permission denied; the token may not have access to this resource"
	case http.StatusNotFound:
		msg = "resource not found; verify the board or card id"
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded; wait before making more requests"
	default:
		text := string(body)
		if len(text) > 200 {
			text = text[:200]
		}
		msg = fmt.Sprintf("API error (HTTP %d): %s", status, text)
	}
	return &APIError{Status: status, Message: msg}
}

// CreateBoard creates a new board and returns it with its assigned id.
func (c *Client) CreateBoard(ctx context.Context, board Board) (*Board, error) {
	var created Board
	if err := c.do(ctx, http.MethodPost, "/boards", nil, board, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetBoard fetches a board with its property schema and board-level
// properties.
func (c *Client) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	var board Board
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID, nil, nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// PatchBoard applies a partial update to board-level fields.
func (c *Client) PatchBoard(ctx context.Context, boardID string, patch BoardPatch) error {
	return c.do(ctx, http.MethodPatch, "/boards/"+boardID, nil, patch, nil)
}

// ListCards returns every card on the board.
func (c *Client) ListCards(ctx context.Context, boardID string) ([]Card, error) {
	var cards []Card
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID+"/cards", nil, nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// CreateCard creates a card on the board. Notifications are disabled; the
// instantiator creates cards in bulk.
func (c *Client) CreateCard(ctx context.Context, boardID string, card CardRequest) (*Card, error) {
	params := url.Values{"disable_notify": {"true"}}
	var created Card
	if err := c.do(ctx, http.MethodPost, "/boards/"+boardID+"/cards", params, card, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListBlocks returns every block on the board: cards, views and content.
func (c *Client) ListBlocks(ctx context.Context, boardID string) ([]Block, error) {
	var blocks []Block
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID+"/blocks", nil, nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// InsertBlocks creates the given blocks on the board in one batch.
func (c *Client) InsertBlocks(ctx context.Context, boardID string, blocks []Block) error {
	return c.do(ctx, http.MethodPost, "/boards/"+boardID+"/blocks", nil, blocks, nil)
}

// PatchBlock applies a partial update to one block. Card properties and
// contentOrder must be written through this endpoint; the cards PATCH
// endpoint does not persist them reliably.
func (c *Client) PatchBlock(ctx context.Context, boardID, blockID string, patch BlockPatch) error {
	return c.do(ctx, http.MethodPatch, "/boards/"+boardID+"/blocks/"+blockID, nil, patch, nil)
}

// Ping checks that the backend is reachable. It uses the unauthenticated
// ping endpoint so an expired token does not mask a healthy server.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "GET /ping", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, nil)
	}
	return nil
}
