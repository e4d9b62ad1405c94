package docservice

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/jwtsign"
	"github.com/docbridge/docbridge/internal/logging"
)

const (
	convertPath     = "/ConvertService.ashx"
	commandPath     = "/coauthoring/CommandService.ashx"
	healthcheckPath = "/healthcheck"

	// maxFetchSize bounds how much of a fetched document is read into
	// memory. Documents past this size are refused rather than truncated.
	maxFetchSize = 1 << 30
)

// Client performs all outbound HTTP interaction with the document server:
// conversion requests, content fetches and availability checks. It holds no
// state beyond its configuration.
type Client struct {
	http   *http.Client
	signer jwtsign.Signer
	cfg    config.Settings

	pollInterval time.Duration
	maxAttempts  int
}

// NewClient builds a client for the configured document server.
func NewClient(cfg config.Settings, signer jwtsign.Signer) *Client {
	transport := http.DefaultTransport
	if cfg.SkipTLSVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logging.Logf("[CONVERT] TLS certificate verification is disabled")
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		signer:       signer,
		cfg:          cfg,
		pollInterval: time.Second,
		maxAttempts:  int(cfg.ConvertTimeout / time.Second),
	}
}

type convertResponse struct {
	Error      *int   `json:"error,omitempty"`
	EndConvert bool   `json:"endConvert"`
	Percent    int    `json:"percent"`
	FileURL    string `json:"fileUrl"`
}

// RequestConversion asks the conversion service to transform the document at
// sourceURL from fromExt to toExt, identified by key. The conversion API is
// asynchronous: the server reports progress until endConvert, so the request
// is re-issued with the same key until the result URL is ready or the
// attempt budget runs out.
func (c *Client) RequestConversion(ctx context.Context, sourceURL, fromExt, toExt, key string) (string, error) {
	payload := map[string]interface{}{
		"async":      true,
		"url":        sourceURL,
		"filetype":   fromExt,
		"outputtype": toExt,
		"key":        key,
	}

	deadline := time.Now().Add(c.cfg.ConvertTimeout)
	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if time.Now().After(deadline) {
			break
		}

		result, err := c.postConvert(ctx, payload)
		if err != nil {
			return "", err
		}
		if result.Error != nil && *result.Error != 0 {
			return "", newConversionError(*result.Error)
		}
		if result.EndConvert && result.FileURL != "" {
			return result.FileURL, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	// the remote never finished; report it with the server's own timeout code
	return "", newConversionError(-2)
}

func (c *Client) postConvert(ctx context.Context, payload map[string]interface{}) (*convertResponse, error) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}

	var header string
	if c.signer.Enabled() {
		bodyToken, err := c.signer.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to sign conversion request: %w", err)
		}
		body["token"] = bodyToken

		header, err = c.signer.Sign(map[string]interface{}{"payload": payload})
		if err != nil {
			return nil, fmt.Errorf("failed to sign conversion header: %w", err)
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := c.cfg.ReplaceDocumentServerURL(c.cfg.DocumentServerURL) + convertPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if header != "" {
		req.Header.Set(c.cfg.JWTHeader, "Bearer "+header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversion service returned status %s", resp.Status)
	}

	var result convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode conversion response: %w", err)
	}
	return &result, nil
}

// FetchContent downloads document bytes from url, signing the request when a
// secret is configured. The URL is remapped to the internal document server
// address before being dereferenced.
func (c *Client) FetchContent(ctx context.Context, url string) ([]byte, error) {
	target := c.cfg.ReplaceDocumentServerURL(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	if c.signer.Enabled() {
		token, err := c.signer.Sign(map[string]interface{}{"url": url})
		if err != nil {
			return nil, &DownloadError{URL: url, Err: err}
		}
		req.Header.Set(c.cfg.JWTHeader, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize+1))
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	if len(data) > maxFetchSize {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("document exceeds %d bytes", maxFetchSize)}
	}
	return data, nil
}

// CheckAvailability probes the document server's health endpoint and asks
// the command service for its version. It goes through the same URL
// remapping as real traffic so the result is representative.
func (c *Client) CheckAvailability(ctx context.Context) (string, error) {
	base := c.cfg.ReplaceDocumentServerURL(c.cfg.DocumentServerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+healthcheckPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("healthcheck request failed: %w", err)
	}
	healthy, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("healthcheck read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(healthy)) != "true" {
		return "", fmt.Errorf("document server healthcheck failed: %q", strings.TrimSpace(string(healthy)))
	}

	version, err := c.commandVersion(ctx, base)
	if err != nil {
		return "", err
	}
	return version, nil
}

func (c *Client) commandVersion(ctx context.Context, base string) (string, error) {
	payload := map[string]interface{}{"c": "version"}
	body := map[string]interface{}{"c": "version"}

	var header string
	if c.signer.Enabled() {
		bodyToken, err := c.signer.Sign(payload)
		if err != nil {
			return "", err
		}
		body["token"] = bodyToken
		header, err = c.signer.Sign(map[string]interface{}{"payload": payload})
		if err != nil {
			return "", err
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+commandPath, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(c.cfg.JWTHeader, "Bearer "+header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("command service request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Error   int    `json:"error"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode command response: %w", err)
	}
	if result.Error != 0 {
		return "", fmt.Errorf("command service returned error %d", result.Error)
	}
	return result.Version, nil
}

// SetPollInterval overrides the conversion poll interval (used in tests).
func (c *Client) SetPollInterval(d time.Duration) { c.pollInterval = d }
