package feedapi

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"feedsync/internal/core"
)

const clientTagHeader = "X-Client-Tag"

// Client speaks to the persistence service: durable writes and the
// full-state endpoint used by the poll fallback. All calls are
// fire-and-await with a single success or failure outcome.
type Client struct {
	client *resty.Client
}

func NewClient(config *ClientConfig) *Client {
	client := resty.NewWithTransportSettings(config.TransportSettings).
		SetBaseURL(config.BaseURL)

	if config.ClientTag != "" {
		client.SetHeader(clientTagHeader, config.ClientTag)
	}

	for _, m := range config.RequestMiddlewares {
		client.AddRequestMiddleware(m)
	}
	for _, m := range config.ResponseMiddlewares {
		client.AddResponseMiddleware(m)
	}

	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) CreatePost(ctx context.Context, body string, visibility core.Visibility, tags []string) (core.Created, error) {
	var created core.Created

	resp, err := c.r(ctx).
		SetBody(map[string]any{"body": body, "visibility": visibility, "tags": tags}).
		SetResult(&created).
		Post("/posts")

	return created, wrap(resp, err)
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	resp, err := c.r(ctx).
		SetPathParam("id", id).
		Delete("/posts/{id}")

	return wrap(resp, err)
}

func (c *Client) CreateComment(ctx context.Context, postID string, parentID *string, body, clientRef string) (core.Created, error) {
	var created core.Created

	payload := map[string]any{"body": body, "clientRef": clientRef}
	if parentID != nil {
		payload["parentId"] = *parentID
	}

	resp, err := c.r(ctx).
		SetPathParam("postId", postID).
		SetBody(payload).
		SetResult(&created).
		Post("/posts/{postId}/comments")

	return created, wrap(resp, err)
}

func (c *Client) UpdateComment(ctx context.Context, id, body string) error {
	resp, err := c.r(ctx).
		SetPathParam("id", id).
		SetBody(map[string]any{"body": body}).
		Patch("/comments/{id}")

	return wrap(resp, err)
}

func (c *Client) DeleteComment(ctx context.Context, id string) error {
	resp, err := c.r(ctx).
		SetPathParam("id", id).
		Delete("/comments/{id}")

	return wrap(resp, err)
}

func (c *Client) SetReaction(ctx context.Context, subjectID string, subjectKind core.SubjectKind, kind string) error {
	resp, err := c.r(ctx).
		SetPathParam("id", subjectID).
		SetBody(map[string]any{"subjectKind": subjectKind, "kind": kind}).
		Put("/reactions/{id}")

	return wrap(resp, err)
}

func (c *Client) ToggleBookmark(ctx context.Context, postID string) error {
	resp, err := c.r(ctx).
		SetPathParam("postId", postID).
		Post("/posts/{postId}/bookmark")

	return wrap(resp, err)
}

func (c *Client) FetchFullState(ctx context.Context, postID string) (*core.FullState, error) {
	var state core.FullState

	resp, err := c.r(ctx).
		SetPathParam("postId", postID).
		SetResult(&state).
		Get("/posts/{postId}/full")

	if err := wrap(resp, err); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) r(ctx context.Context) *resty.Request {
	return c.client.R().WithContext(ctx)
}

func wrap(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", core.ErrWriteRejected, resp.Status())
	}
	return nil
}
