// Package platform is the HTTP client for the external social
// platform. Every call classifies failures so workers can tell a
// retryable outage apart from a rejected request.
package platform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rovelin/postpilot/internal/transfer"
)

type Client interface {
	CreatePost(ctx context.Context, accessToken, caption string, mediaURLs []string) (*transfer.CreatePostResult, error)
	DeletePost(ctx context.Context, accessToken, externalID string) error
	Introspect(ctx context.Context, accessToken string) (*transfer.Introspection, error)
}

type client struct {
	rest *resty.Client
}

func NewClient(baseURL string) Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &client{rest: rest}
}

func (c *client) CreatePost(ctx context.Context, accessToken, caption string, mediaURLs []string) (*transfer.CreatePostResult, error) {
	var result transfer.CreatePostResult

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]any{
			"text":       caption,
			"media_urls": mediaURLs,
		}).
		SetResult(&result).
		Post("/v1/posts")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}

	if resp.IsError() {
		return nil, apiErrorFrom(resp)
	}

	return &result, nil
}

func (c *client) DeletePost(ctx context.Context, accessToken, externalID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("id", externalID).
		Delete("/v1/posts/{id}")
	if err != nil {
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}

	if resp.IsError() {
		return apiErrorFrom(resp)
	}

	return nil
}

func (c *client) Introspect(ctx context.Context, accessToken string) (*transfer.Introspection, error) {
	var result transfer.Introspection

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&result).
		Get("/v1/oauth/introspect")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}

	if resp.IsError() {
		return nil, apiErrorFrom(resp)
	}

	return &result, nil
}

func apiErrorFrom(resp *resty.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Kind:       classify(resp.StatusCode()),
		Message:    resp.Status(),
	}

	var body transfer.PlatformErrorResponse
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		if body.Error.IsTransient {
			apiErr.Kind = KindTransient
		}
	}

	return apiErr
}
