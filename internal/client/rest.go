package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/models"
)

// Error kinds mapped from HTTP statuses.
var (
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrNotFound     = fmt.Errorf("not found")
	ErrBadRequest   = fmt.Errorf("bad request")
	ErrServer       = fmt.Errorf("server error")
)

// RestClient implements MessageAPI against the HTTP endpoints.
type RestClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRestClient creates a client for the given server base URL using
// the given bearer token.
func NewRestClient(baseURL, token string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RestClient) Conversation(ctx context.Context, otherUserID uuid.UUID) ([]*models.Message, error) {
	endpoint := fmt.Sprintf("%s/api/messages?userId=%s", c.baseURL, url.QueryEscape(otherUserID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var messages []*models.Message
	if err := c.do(req, http.StatusOK, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *RestClient) Send(ctx context.Context, receiverID uuid.UUID, content string) (*models.Message, error) {
	body, err := json.Marshal(models.MessageRequest{ReceiverID: receiverID, Content: content})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var message models.Message
	if err := c.do(req, http.StatusCreated, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *RestClient) do(req *http.Request, wantStatus int, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		io.Copy(io.Discard, resp.Body)
		return statusError(resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return fmt.Errorf("%w: status %d", ErrServer, status)
	}
}
