// Package backend talks to the story server: story continuations, narration
// audio and illustrations. All endpoints are query-parameter GETs.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"onceupon/internal/domain/story"
	"onceupon/internal/domain/voice"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

const (
	storyEndpoint = "/story"
	audioEndpoint = "/audio"
	imageEndpoint = "/image"
)

// Fetcher performs a GET and returns the body of a successful response.
// *httpkit.Client satisfies it.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

type Client struct {
	fetcher Fetcher
	baseURL string
}

// StoryRequest carries everything the server needs for one continuation.
type StoryRequest struct {
	Story string
	Word  string
	Voice voice.Voice
}

type audioResponse struct {
	Audio string `json:"audio"`
}

type imageResponse struct {
	Image *string `json:"image"`
}

// NewClient returns a client backed by a retrying httpkit client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithFetcher(baseURL, httpkit.New(timeout))
}

func NewClientWithFetcher(baseURL string, f Fetcher) *Client {
	return &Client{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) buildURL(endpoint string, q url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("invalid base url: %w", err)}
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return "", &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("failed to join path: %w", err)}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	target, err := c.buildURL(endpoint, q)
	if err != nil {
		return err
	}

	body, err := c.fetcher.FetchBytes(ctx, target)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// Story asks the server to continue the story with one more word.
func (c *Client) Story(ctx context.Context, req StoryRequest) (story.Response, error) {
	q := url.Values{}
	q.Set("story", req.Story)
	q.Set("word", req.Word)
	q.Set("voice", req.Voice.String())

	var resp story.Response
	if err := c.get(ctx, storyEndpoint, q, &resp); err != nil {
		return story.Response{}, err
	}
	return resp, nil
}

// Audio returns a playable reference for text spoken in the given voice.
func (c *Client) Audio(ctx context.Context, text string, v voice.Voice) (string, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("voice", v.String())

	var resp audioResponse
	if err := c.get(ctx, audioEndpoint, q, &resp); err != nil {
		return "", err
	}
	if resp.Audio == "" {
		return "", &DecodeError{Endpoint: audioEndpoint, Err: errors.New("missing audio reference")}
	}
	return resp.Audio, nil
}

// Image checks whether an illustration for sentence is ready.
// A response without an image is not an error: ready is false.
func (c *Client) Image(ctx context.Context, sentence string) (ref string, ready bool, err error) {
	q := url.Values{}
	q.Set("sentence", sentence)

	var resp imageResponse
	if err := c.get(ctx, imageEndpoint, q, &resp); err != nil {
		return "", false, err
	}
	if resp.Image == nil || *resp.Image == "" {
		return "", false, nil
	}
	return *resp.Image, true, nil
}

// Fetch downloads a reference returned by the server. Relative references
// are resolved against the base URL.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	body, err := c.fetcher.FetchBytes(ctx, target)
	if err != nil {
		return nil, &NetworkError{Endpoint: target, Err: err}
	}
	return body, nil
}

// Resolve turns a possibly relative reference into an absolute URL.
func (c *Client) Resolve(ref string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return base.ResolveReference(r).String(), nil
}
