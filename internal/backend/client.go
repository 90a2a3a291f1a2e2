// Package backend talks to the association REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/assocportal/portal/internal/rbac"
)

const maxBodyBytes = 10 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	AuthScheme string
	HTTPClient *http.Client
}

// Client wraps interactions with the REST backend.
type Client struct {
	baseURL    string
	scheme     string
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	scheme := strings.TrimSpace(cfg.AuthScheme)
	if scheme == "" {
		scheme = "Bearer"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scheme:     scheme,
		httpClient: httpClient,
		validate:   validator.New(),
	}
}

// Response is a successful backend reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("backend: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// DecodeList unmarshals a list reply into v, a pointer to a slice. Both a
// bare JSON array and a paginated {"results": [...]} envelope are accepted.
func (r *Response) DecodeList(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("backend: empty response body")
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) > 0 && body[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		if len(page.Results) == 0 {
			return fmt.Errorf("backend: list reply without results")
		}
		body = page.Results
	}
	return json.Unmarshal(body, v)
}

// Do issues a request. body, when non-nil, is sent as JSON. Non-2xx replies
// are returned as *StatusError.
func (c *Client) Do(ctx context.Context, token, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if header := c.authorization(token); header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// WithToken binds the client to a session token.
func (c *Client) WithToken(token string) *TokenClient {
	return &TokenClient{client: c, token: token}
}

// TokenClient issues requests on behalf of one session.
type TokenClient struct {
	client *Client
	token  string
}

// Do issues an authenticated request.
func (t *TokenClient) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	return t.client.Do(ctx, t.token, method, path, body)
}

type profilePayload struct {
	ID   int64 `json:"id" validate:"required,gt=0"`
	Role *struct {
		Name string `json:"name"`
	} `json:"role"`
	IsSuperuser bool `json:"is_superuser"`
}

// FetchProfile retrieves the profile of the token owner.
func (c *Client) FetchProfile(ctx context.Context, token string) (rbac.Profile, error) {
	resp, err := c.Do(ctx, token, http.MethodGet, "/users/profile/", nil)
	if err != nil {
		return rbac.Profile{}, err
	}
	var payload profilePayload
	if err := resp.Decode(&payload); err != nil {
		return rbac.Profile{}, fmt.Errorf("backend: decode profile: %w", err)
	}
	if err := c.validate.Struct(payload); err != nil {
		return rbac.Profile{}, fmt.Errorf("backend: malformed profile: %w", err)
	}
	profile := rbac.Profile{ID: payload.ID, IsSuperuser: payload.IsSuperuser}
	if payload.Role != nil {
		profile.RoleName = payload.Role.Name
	}
	return profile, nil
}

// LoginResult carries the token issued by the backend.
type LoginResult struct {
	Token string `json:"token" validate:"required"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.Do(ctx, "", http.MethodPost, "/users/login/", body)
	if err != nil {
		return LoginResult{}, err
	}
	var result LoginResult
	if err := resp.Decode(&result); err != nil {
		return LoginResult{}, fmt.Errorf("backend: decode login: %w", err)
	}
	if err := c.validate.Struct(result); err != nil {
		return LoginResult{}, fmt.Errorf("backend: malformed login reply: %w", err)
	}
	return result, nil
}

// Logout revokes the token on the backend.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.Do(ctx, token, http.MethodPost, "/users/logout/", map[string]string{})
	return err
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// authorization keeps a scheme already present on the stored token.
func (c *Client) authorization(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(token, "Bearer ") || strings.HasPrefix(token, "Token ") {
		return token
	}
	return c.scheme + " " + token
}
