// Package gemini implements the DocumentCorrector port against the Gemini
// generateContent REST API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultModel is the default Gemini generation model.
	DefaultModel = "gemini-2.0-flash"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 60 * time.Second
)

// ClientConfig holds the configuration for the Gemini API client.
type ClientConfig struct {
	APIKey    string        `json:"api_key"`
	BaseURL   string        `json:"base_url"`
	Model     string        `json:"model"`
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API key cannot be empty")
	}
	if err := c.validateBaseURL(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (c *ClientConfig) validateBaseURL() error {
	if c.BaseURL == "" {
		return nil
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.New("invalid base URL")
	}
	if !strings.HasPrefix(c.BaseURL, "http") {
		return errors.New("invalid base URL")
	}
	return nil
}

// Client represents the Gemini API client.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Gemini API client with the provided configuration.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	finalConfig := applyConfigDefaults(config)

	return &Client{
		config:     finalConfig,
		httpClient: createHTTPClient(finalConfig.Timeout),
	}, nil
}

// NewClientFromEnv creates a client, falling back to GEMINI_API_KEY or
// GOOGLE_API_KEY when the config carries no key.
func NewClientFromEnv(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = &ClientConfig{}
	}

	envConfig := *config
	if envConfig.APIKey == "" {
		if geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); geminiKey != "" {
			envConfig.APIKey = geminiKey
		} else if googleKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); googleKey != "" {
			envConfig.APIKey = googleKey
		}
	}
	if strings.TrimSpace(envConfig.APIKey) == "" {
		return nil, errors.New("API key not found in config or environment variables")
	}

	return NewClient(&envConfig)
}

// applyConfigDefaults creates a new config with defaults applied.
func applyConfigDefaults(config *ClientConfig) *ClientConfig {
	finalConfig := *config
	finalConfig.APIKey = strings.TrimSpace(config.APIKey)

	if finalConfig.BaseURL == "" {
		finalConfig.BaseURL = defaultBaseURL
	}
	if finalConfig.Model == "" {
		finalConfig.Model = DefaultModel
	}
	if finalConfig.Timeout == 0 {
		finalConfig.Timeout = defaultTimeout
	}
	if finalConfig.UserAgent == "" {
		finalConfig.UserAgent = "Docmender-Gemini-Client/1.0.0"
	}

	return &finalConfig
}

// createHTTPClient creates an HTTP client with pooled transport settings.
func createHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
		MaxConnsPerHost:   50,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// GetConfig returns a copy of the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	configCopy := *c.config
	return &configCopy
}

// createRequest builds an authenticated request against the configured base
// URL.
func (c *Client) createRequest(
	ctx context.Context,
	method, endpoint string,
	body io.Reader,
) (*http.Request, error) {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")
	fullURL := baseURL + "/" + cleanEndpoint

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("X-Goog-Api-Key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	return req, nil
}
