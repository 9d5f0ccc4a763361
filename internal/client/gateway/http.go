package gateway

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

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/netx"
)

type HTTPGateway struct {
	base   *url.URL
	client *http.Client
}

type Option func(*HTTPGateway)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// NewHTTPGateway returns a gateway rooted at baseURL, e.g.
// "http://127.0.0.1:8080/api".
func NewHTTPGateway(baseURL string, opts ...Option) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}

	g := &HTTPGateway{base: u, client: &http.Client{}}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *HTTPGateway) endpoint(collection string, id ...string) string {
	parts := []string{url.PathEscape(collection)}
	for _, p := range id {
		parts = append(parts, url.PathEscape(p))
	}
	return g.base.JoinPath(parts...).String()
}

func (g *HTTPGateway) Create(ctx context.Context, collection string, fields map[string]any, idempotencyKey string) (models.Record, error) {
	req, err := netx.NewJSONRequest(ctx, http.MethodPost, g.endpoint(collection), nonNil(fields))
	if err != nil {
		return models.Record{}, err
	}
	if idempotencyKey != "" {
		req.Header.Set(common.IdempotencyKeyHeader, idempotencyKey)
	}

	body, err := g.do(req)
	if err != nil {
		return models.Record{}, err
	}
	var rec models.Record
	if err := decode(body, &rec); err != nil {
		return models.Record{}, err
	}
	if rec.ID == "" {
		return models.Record{}, fmt.Errorf("%w: create %s: response without id", ErrUnavailable, collection)
	}
	rec.OfflineOrigin = false
	return rec, nil
}

func (g *HTTPGateway) Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error) {
	req, err := netx.NewJSONRequest(ctx, http.MethodPut, g.endpoint(collection, id), nonNil(fields))
	if err != nil {
		return models.Record{}, err
	}
	body, err := g.do(req)
	if err != nil {
		return models.Record{}, err
	}
	var rec models.Record
	if len(bytes.TrimSpace(body)) == 0 {
		return rec, nil
	}
	if err := decode(body, &rec); err != nil {
		return models.Record{}, err
	}
	rec.OfflineOrigin = false
	return rec, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, collection, id string) error {
	req, err := netx.NewJSONRequest(ctx, http.MethodDelete, g.endpoint(collection, id), nil)
	if err != nil {
		return err
	}
	_, err = g.do(req)
	return err
}

// List accepts a bare JSON array or an object with a "data" array.
func (g *HTTPGateway) List(ctx context.Context, collection string) ([]models.Record, error) {
	req, err := netx.NewJSONRequest(ctx, http.MethodGet, g.endpoint(collection), nil)
	if err != nil {
		return nil, err
	}
	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	var list []models.Record
	if len(body) > 0 && body[0] == '{' {
		var envelope struct {
			Data []models.Record `json:"data"`
		}
		if err := decode(body, &envelope); err != nil {
			return nil, err
		}
		list = envelope.Data
	} else if err := decode(body, &list); err != nil {
		return nil, err
	}

	if list == nil {
		list = []models.Record{}
	}
	for i := range list {
		list[i].OfflineOrigin = false
	}
	return list, nil
}

func (g *HTTPGateway) Ping(ctx context.Context) error {
	req, err := netx.NewJSONRequest(ctx, http.MethodGet, g.base.JoinPath(common.HealthPath).String(), nil)
	if err != nil {
		return err
	}
	_, err = g.do(req)
	return err
}

func (g *HTTPGateway) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	if err := netx.CheckResponse(resp); err != nil {
		return nil, mapError(err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapError(err)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		if errors.Is(err, common.ErrInvalidPayload) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return nil
}

func nonNil(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}
