// Package market talks to the external artifact marketplace. The gateway
// forwards approved artifacts through this client and surfaces marketplace
// failures to callers unchanged.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forgegate.dev/internal/artifact"
)

// ErrMarketplace wraps transport and remote failures.
var ErrMarketplace = errors.New("market: marketplace request failed")

// Client is the contract against the marketplace backend.
type Client interface {
	Publish(ctx context.Context, id string, typ artifact.Type, content map[string]any, meta artifact.Metadata) error
	Search(ctx context.Context, query string, typ *artifact.Type) ([]artifact.Metadata, error)
	Install(ctx context.Context, id string, typ artifact.Type) (map[string]any, artifact.Metadata, error)
	Delete(ctx context.Context, id string, typ artifact.Type) error
}

// HTTPClient is the JSON-over-HTTP Client implementation.
type HTTPClient struct {
	base   string
	client *http.Client
}

// NewHTTPClient builds a client against the marketplace base URL.
func NewHTTPClient(base string, client *http.Client) (*HTTPClient, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, errors.New("market: base URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{base: base, client: client}, nil
}

type publishRequest struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Content  map[string]any    `json:"content"`
	Metadata artifact.Metadata `json:"metadata"`
}

type installResponse struct {
	Content  map[string]any    `json:"content"`
	Metadata artifact.Metadata `json:"metadata"`
}

func (c *HTTPClient) Publish(ctx context.Context, id string, typ artifact.Type, content map[string]any, meta artifact.Metadata) error {
	body := publishRequest{ID: id, Type: typ.String(), Content: content, Metadata: meta}
	return c.do(ctx, http.MethodPost, "/v1/artifacts", body, nil)
}

func (c *HTTPClient) Search(ctx context.Context, query string, typ *artifact.Type) ([]artifact.Metadata, error) {
	q := url.Values{}
	if strings.TrimSpace(query) != "" {
		q.Set("q", query)
	}
	if typ != nil {
		q.Set("type", typ.String())
	}
	path := "/v1/artifacts"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []artifact.Metadata
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Install(ctx context.Context, id string, typ artifact.Type) (map[string]any, artifact.Metadata, error) {
	var out installResponse
	path := fmt.Sprintf("/v1/artifacts/%s/%s", typ, url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, artifact.Metadata{}, err
	}
	return out.Content, out.Metadata, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string, typ artifact.Type) error {
	path := fmt.Sprintf("/v1/artifacts/%s/%s", typ, url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrMarketplace, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarketplace, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarketplace, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrMarketplace, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrMarketplace, err)
	}
	return nil
}
