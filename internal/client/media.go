package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"zm-cli/internal/errs"
	"zm-cli/internal/session"
)

// Media URLs bypass Do on purpose: they are consumed by a passive
// rendering sink (or saved to disk) that issues its own GET, not a
// JSON call that needs structured error handling. The token rides
// along as a query parameter because the sink cannot set headers.

const streamPath = "/cgi-bin/nph-zms"

// MonitorStreamURL builds a live MJPEG stream URL for one monitor,
// with a fresh random connection key so the streamer can tell
// concurrent viewers apart.
func (c *ZMClient) MonitorStreamURL(ctx context.Context, monitorID int) (string, error) {
	if monitorID <= 0 {
		return "", &errs.ValidationError{Msg: fmt.Sprintf("monitor id must be positive, got %d", monitorID)}
	}

	q := url.Values{}
	q.Set("mode", "jpeg")
	q.Set("monitor", strconv.Itoa(monitorID))
	q.Set("scale", "100")
	q.Set("maxfps", "5")
	q.Set("buffer", "1000")
	q.Set("connkey", connKey())
	c.attachToken(ctx, q)

	return c.session.BaseURL() + streamPath + "?" + q.Encode(), nil
}

// EventThumbnailURL builds a still-frame URL for an event, scaled to
// the requested box.
func (c *ZMClient) EventThumbnailURL(ctx context.Context, eventID int64, width, height int) (string, error) {
	if eventID <= 0 {
		return "", &errs.ValidationError{Msg: fmt.Sprintf("event id must be positive, got %d", eventID)}
	}

	q := url.Values{}
	q.Set("view", "image")
	q.Set("eid", strconv.FormatInt(eventID, 10))
	q.Set("fid", "snapshot")
	if width > 0 {
		q.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("height", strconv.Itoa(height))
	}
	c.attachToken(ctx, q)

	return c.session.BaseURL() + "/index.php?" + q.Encode(), nil
}

// EventPlaybackURL builds an MJPEG playback URL for a recorded event.
func (c *ZMClient) EventPlaybackURL(ctx context.Context, eventID int64) (string, error) {
	if eventID <= 0 {
		return "", &errs.ValidationError{Msg: fmt.Sprintf("event id must be positive, got %d", eventID)}
	}

	q := url.Values{}
	q.Set("source", "event")
	q.Set("mode", "jpeg")
	q.Set("event", strconv.FormatInt(eventID, 10))
	q.Set("frame", "1")
	q.Set("rate", "100")
	q.Set("scale", "100")
	q.Set("maxfps", "5")
	q.Set("replay", "single")
	q.Set("connkey", connKey())
	c.attachToken(ctx, q)

	return c.session.BaseURL() + streamPath + "?" + q.Encode(), nil
}

// DownloadEventSnapshot fetches the event's snapshot frame as raw JPEG
// bytes, the way a rendering surface would.
func (c *ZMClient) DownloadEventSnapshot(ctx context.Context, eventID int64, width, height int) ([]byte, error) {
	u, err := c.EventThumbnailURL(ctx, eventID, width, height)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, errs.FromTransport(err)
	}
	if resp.IsError() {
		return nil, &errs.RequestError{Kind: errs.KindHTTP, StatusCode: resp.StatusCode()}
	}
	if len(resp.Body()) == 0 {
		return nil, errors.New("snapshot response body is empty")
	}
	return resp.Body(), nil
}

// attachToken embeds the current token unless the session is tokenless
// (no-auth sentinel) or unauthenticated.
func (c *ZMClient) attachToken(ctx context.Context, q url.Values) {
	if tok, ok := c.session.ValidToken(ctx); ok && tok != session.NoAuthToken {
		q.Set("token", tok)
	}
}

// connKey is the random per-viewer connection key the streamer
// expects; the first word of a fresh UUID is random enough.
func connKey() string {
	return strconv.FormatUint(uint64(uuid.New().ID()), 10)
}
