// Package e2e drives a running portal over HTTP with godog scenarios.
//
// Run against a server started with ADMIN_EMAIL and ADMIN_PASSWORD set:
//
//	E2E_BASE_URL=http://localhost:8080 E2E_ADMIN_EMAIL=... E2E_ADMIN_PASSWORD=... go test -tags e2e ./...
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// TestContext carries the HTTP client and the last response across steps.
type TestContext struct {
	BaseURL       string
	AdminEmail    string
	AdminPassword string

	client      *http.Client
	status      int
	header      http.Header
	body        []byte
	accessToken string
	saved       map[string]string
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/"),
		AdminEmail:    os.Getenv("E2E_ADMIN_EMAIL"),
		AdminPassword: os.Getenv("E2E_ADMIN_PASSWORD"),
		client:        &http.Client{Timeout: 10 * time.Second},
		saved:         map[string]string{},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.status = 0
	tc.header = nil
	tc.body = nil
	tc.accessToken = ""
	tc.saved = map[string]string{}
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, "")
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil, "")
}

// POST sends body as JSON. A nil body sends an empty request.
func (tc *TestContext) POST(path string, body any) error {
	return tc.sendJSON(http.MethodPost, path, body)
}

func (tc *TestContext) PUT(path string, body any) error {
	return tc.sendJSON(http.MethodPut, path, body)
}

// PostForm submits values the way the HTML form does.
func (tc *TestContext) PostForm(path string, values url.Values) error {
	return tc.do(http.MethodPost, path, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (tc *TestContext) sendJSON(method, path string, body any) error {
	if body == nil {
		return tc.do(method, path, nil, "")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return tc.do(method, path, bytes.NewReader(raw), "application/json")
}

func (tc *TestContext) do(method, path string, body io.Reader, contentType string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.accessToken != "" && strings.HasPrefix(path, "/admin") {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.header = resp.Header
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) Status() int { return tc.status }

func (tc *TestContext) Header(key string) string { return tc.header.Get(key) }

func (tc *TestContext) Body() []byte { return tc.body }

// ResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(tc.body, &decoded); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.body)
	}
	v, ok := decoded[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from response: %s", field, tc.body)
	}
	return v, nil
}

func (tc *TestContext) SetAccessToken(token string) { tc.accessToken = token }

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) string { return tc.saved[key] }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (tc *TestContext) AdminCredentials() (string, string) {
	return tc.AdminEmail, tc.AdminPassword
}
