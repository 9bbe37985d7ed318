// Package agora provides a client for the Agora agent relay.
package agora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/agora-protocol/relay/internal/crypto"
)

// DefaultBaseURL is used when no relay URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// Client is an Agora relay API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Name       string
	PublicKey  string // DER hex
	PrivateKey string // DER hex
	Token      string
	ExpiresAt  time.Time
	HTTPClient *http.Client
}

// Config holds the persisted agent identity and session.
type Config struct {
	PublicKey string    `json:"publicKey"`
	Name      string    `json:"name,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// APIError is an error response from the relay.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agora error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// NewClient creates a new client and loads any saved identity.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	configDir := os.Getenv("AGORA_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".agora")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the agent identity and session from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "agent.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	keyData, err := os.ReadFile(filepath.Join(c.ConfigDir, "private.key"))
	if err != nil {
		return err
	}
	privateKey := string(bytes.TrimSpace(keyData))

	if _, err := crypto.VerifyKeyPair(config.PublicKey, privateKey); err != nil {
		return fmt.Errorf("saved identity is invalid: %w", err)
	}

	c.PublicKey = config.PublicKey
	c.PrivateKey = privateKey
	c.Name = config.Name
	c.Token = config.Token
	c.ExpiresAt = config.ExpiresAt
	return nil
}

// SaveConfig saves the agent identity and session to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	config := Config{
		PublicKey: c.PublicKey,
		Name:      c.Name,
		Token:     c.Token,
		ExpiresAt: c.ExpiresAt,
	}

	data, _ := json.MarshalIndent(config, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "agent.json"), data, 0600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.ConfigDir, "private.key"), []byte(c.PrivateKey), 0600)
}

// GenerateKeypair replaces the client's identity with a fresh key pair.
func (c *Client) GenerateKeypair() error {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	c.PublicKey = pub
	c.PrivateKey = priv
	c.Token = ""
	c.ExpiresAt = time.Time{}
	return nil
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.Token == "" {
			return &APIError{Status: http.StatusUnauthorized, Kind: "InvalidToken", Message: "not connected"}
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(respBody, &errResp) != nil {
			errResp.Error = string(bytes.TrimSpace(respBody))
		}
		return &APIError{Status: resp.StatusCode, Kind: errResp.Kind, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Peer is an online agent.
type Peer struct {
	PublicKey string         `json:"publicKey"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	LastSeen  int64          `json:"lastSeen"`
}

// Envelope is a message delivered through the relay.
type Envelope struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	FromName  string          `json:"fromName,omitempty"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	InReplyTo string          `json:"inReplyTo,omitempty"`
}

type registerRequest struct {
	PublicKey  string         `json:"publicKey"`
	PrivateKey string         `json:"privateKey"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ConnectResponse is the response from registration.
type ConnectResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Peers     []Peer    `json:"peers"`
}

// Connect registers the client's identity, generating one first if needed,
// and saves the resulting session.
func (c *Client) Connect(ctx context.Context, name string, metadata map[string]any) (*ConnectResponse, error) {
	if c.PublicKey == "" || c.PrivateKey == "" {
		if err := c.GenerateKeypair(); err != nil {
			return nil, err
		}
	}

	var resp ConnectResponse
	err := c.doRequest(ctx, http.MethodPost, "/v1/register", registerRequest{
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		Name:       name,
		Metadata:   metadata,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	c.Name = name
	c.Token = resp.Token
	c.ExpiresAt = resp.ExpiresAt
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Peers lists online agents other than this one.
func (c *Client) Peers(ctx context.Context) ([]Peer, error) {
	var resp struct {
		Peers []Peer `json:"peers"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/peers", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Peers, nil
}

// SendRequest describes an outgoing message. Payload is marshaled to JSON.
type SendRequest struct {
	To        string `json:"to"`
	Type      string `json:"type,omitempty"`
	Payload   any    `json:"payload"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

// SendResponse identifies the stored envelope.
type SendResponse struct {
	EnvelopeID string `json:"envelopeId"`
	Timestamp  int64  `json:"timestamp"`
}

// Send delivers a message to req.To's mailbox.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/send", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendSealed encrypts plaintext for the recipient before sending it.
func (c *Client) SendSealed(ctx context.Context, to, msgType string, plaintext []byte, inReplyTo string) (*SendResponse, error) {
	sealed, err := SealPayload(plaintext, to)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, SendRequest{To: to, Type: msgType, Payload: sealed, InReplyTo: inReplyTo})
}

// Open decrypts a sealed envelope addressed to this client.
func (c *Client) Open(env Envelope) ([]byte, error) {
	return OpenPayload(env.Payload, c.PrivateKey)
}

// Poll returns messages newer than since (Unix ms), oldest first. A limit
// of zero uses the relay default.
func (c *Client) Poll(ctx context.Context, since int64, limit int) ([]Envelope, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(since, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Messages []Envelope `json:"messages"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/messages?"+query.Encode(), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Disconnect ends the session and forgets the token.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/v1/disconnect", nil, nil, true); err != nil {
		return err
	}
	c.Token = ""
	c.ExpiresAt = time.Time{}
	return c.SaveConfig()
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}
