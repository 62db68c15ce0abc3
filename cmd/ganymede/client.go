package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/ganymede/pkg/server"
)

// apiClient is a thin HTTP client for a running governance core.
type apiClient struct {
	baseURL string
	author  string
	client  *http.Client
}

func newAPIClient(baseURL, author string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		author:  author,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// do issues a request and returns the status code and raw body.
func (c *apiClient) do(method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.author != "" {
		req.Header.Set(server.AuthorHeader, c.author)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

// apiError extracts the error message from an error envelope, falling back
// to the raw body.
func apiError(payload []byte) string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Sprintf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return string(payload)
}

// parsePayload decodes a JSON payload into target.
func parsePayload(payload []byte, target interface{}) error {
	return json.Unmarshal(payload, target)
}

// printPayload pretty-prints a JSON payload.
func printPayload(payload []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		fmt.Println(string(payload))
		return
	}
	fmt.Println(buf.String())
}
