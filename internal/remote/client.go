package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xolex/xolex/internal/models"
)

// ErrNoToken is returned by Login when the API answers 2xx without a token.
var ErrNoToken = errors.New("no token received")

// Client defines the contract for talking to the operations API.
// An empty credential sends the request without an Authorization header.
type Client interface {
	Login(ctx context.Context, email, password string) (string, error)
	ListOperations(ctx context.Context, credential string) ([]models.Operation, error)
	SubmitReception(ctx context.Context, credential string, req *ReceptionRequest) (*ReceptionResponse, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based API client. A zero timeout leaves
// requests bounded only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) do(ctx context.Context, method, path, credential string, reqBody interface{}) (*http.Response, error) {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, credential string, reqBody, respBody interface{}) error {
	resp, err := c.do(ctx, method, path, credential, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Login exchanges email and password for a bearer credential.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	var resp LoginResponse
	req := &LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, PathLogin, "", req, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", ErrNoToken
	}
	return resp.Token, nil
}

// ListOperations fetches the operations visible to the credential, in server order.
func (c *HTTPClient) ListOperations(ctx context.Context, credential string) ([]models.Operation, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, PathOperations, credential, nil, &raw); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	ops, err := decodeOperations(raw)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

// decodeOperations accepts either {"operations": [...]} or a bare array.
func decodeOperations(raw json.RawMessage) ([]models.Operation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.Operation{}, nil
	}

	switch trimmed[0] {
	case '[':
		var ops []models.Operation
		if err := json.Unmarshal(trimmed, &ops); err != nil {
			return nil, fmt.Errorf("decode operations: %w", err)
		}
		return ops, nil
	case '{':
		var env struct {
			Operations *[]models.Operation `json:"operations"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode operations: %w", err)
		}
		if env.Operations == nil {
			return nil, fmt.Errorf("decode operations: object without an operations field")
		}
		if *env.Operations == nil {
			return []models.Operation{}, nil
		}
		return *env.Operations, nil
	default:
		return nil, fmt.Errorf("decode operations: unexpected payload")
	}
}

// SubmitReception posts a reception confirmation. It is never retried.
func (c *HTTPClient) SubmitReception(ctx context.Context, credential string, req *ReceptionRequest) (*ReceptionResponse, error) {
	var resp ReceptionResponse
	if err := c.doJSON(ctx, http.MethodPost, PathReception, credential, req, &resp); err != nil {
		return nil, fmt.Errorf("submit reception: %w", err)
	}
	return &resp, nil
}

// APIError is a non-2xx answer from the API. Message is empty when the body
// carried none or could not be parsed; callers apply their own fallback.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &APIError{
			Code:   "unknown",
			Status: resp.StatusCode,
		}
	}

	return &APIError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}

// MessageOr returns the API's message when err carries one, otherwise fallback.
// Errors that never reached the API (transport failures) yield network.
func MessageOr(err error, fallback, network string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if IsTransport(err) {
		return network
	}
	return fallback
}

// TransportError is a request that never produced an HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("execute request: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err happened before any HTTP response was received.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
