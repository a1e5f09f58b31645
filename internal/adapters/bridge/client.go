package bridge

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/browser"
	"github.com/dkeye/Huddle/internal/domain"
)

var owners atomic.Uint64

// Client implements browser.Client on an attached Page.
type Client struct {
	page  *Page
	owner uint64
}

var _ browser.Client = (*Client)(nil)

func NewClient(p *Page) *Client {
	return &Client{page: p, owner: owners.Add(1)}
}

type joinParams struct {
	Channel string               `json:"channel"`
	Token   string               `json:"token,omitempty"`
	UID     domain.ParticipantID `json:"uid"`
}

type trackParams struct {
	Tracks []browser.TrackID `json:"tracks"`
}

type remoteParams struct {
	UID       domain.ParticipantID `json:"uid"`
	MediaType string               `json:"mediaType"`
}

type enableParams struct {
	Track   browser.TrackID `json:"track"`
	Enabled bool            `json:"enabled"`
}

type oneTrack struct {
	Track browser.TrackID `json:"track"`
}

func (c *Client) Join(ctx context.Context, channel, token string, uid domain.ParticipantID) error {
	return c.page.Call(ctx, "join", joinParams{Channel: channel, Token: token, UID: uid}, nil)
}

func (c *Client) CreateMicrophoneAndCameraTracks(ctx context.Context) (browser.TrackID, browser.TrackID, error) {
	var out struct {
		Audio browser.TrackID `json:"audio"`
		Video browser.TrackID `json:"video"`
	}
	if err := c.page.Call(ctx, "createMicrophoneAndCameraTracks", nil, &out); err != nil {
		return "", "", err
	}
	return out.Audio, out.Video, nil
}

func (c *Client) Publish(ctx context.Context, tracks ...browser.TrackID) error {
	return c.page.Call(ctx, "publish", trackParams{Tracks: tracks}, nil)
}

func (c *Client) Unpublish(ctx context.Context, tracks ...browser.TrackID) error {
	return c.page.Call(ctx, "unpublish", trackParams{Tracks: tracks}, nil)
}

func (c *Client) Subscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error {
	return c.page.Call(ctx, "subscribe", remoteParams{UID: uid, MediaType: mediaType}, nil)
}

func (c *Client) Unsubscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error {
	return c.page.Call(ctx, "unsubscribe", remoteParams{UID: uid, MediaType: mediaType}, nil)
}

func (c *Client) SetEnabled(ctx context.Context, track browser.TrackID, enabled bool) error {
	return c.page.Call(ctx, "setEnabled", enableParams{Track: track, Enabled: enabled}, nil)
}

func (c *Client) StopTrack(ctx context.Context, track browser.TrackID) error {
	return c.page.Call(ctx, "stopTrack", oneTrack{Track: track}, nil)
}

func (c *Client) CloseTrack(ctx context.Context, track browser.TrackID) error {
	return c.page.Call(ctx, "closeTrack", oneTrack{Track: track}, nil)
}

func (c *Client) Leave(ctx context.Context) error {
	return c.page.Call(ctx, "leave", nil, nil)
}

func (c *Client) On(event string, fn func(browser.ClientEvent)) {
	c.page.on(c.owner, event, func(raw json.RawMessage) {
		var e browser.ClientEvent
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e); err != nil {
				log.Warn().Err(err).Str("module", "bridge").Str("event", event).Msg("bad event payload")
				return
			}
		}
		fn(e)
	})
}

func (c *Client) RemoveAllListeners() {
	c.page.off(c.owner)
}

func (c *Client) Done() <-chan struct{} { return c.page.Done() }
