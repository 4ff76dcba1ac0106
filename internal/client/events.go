package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"zm-cli/internal/errs"
	"zm-cli/pkg/models"
)

// The timestamp format the events endpoint expects for from/to
// filters.
const serverTimeFormat = "2006-01-02 15:04:05"

// ListEventsOptions filters and pages the event listing. Zero values
// mean "server default".
type ListEventsOptions struct {
	Page       int
	Limit      int
	MonitorIDs []int
	From       time.Time
	To         time.Time
}

// EventPage is one page of events plus the server-reported cursor
// position. Ordering is whatever the server returned and is preserved.
type EventPage struct {
	Events      []models.Event
	CurrentPage int
	TotalPages  int
}

// HasMore reports whether another page exists, strictly from the
// server-reported page count, never from page fullness.
func (p *EventPage) HasMore() bool {
	return p.TotalPages > 0 && p.CurrentPage < p.TotalPages
}

// ListEvents fetches one page of events, newest first. Monitor filters
// become chained /MonitorId:<id> path segments.
func (c *ZMClient) ListEvents(ctx context.Context, opts ListEventsOptions) (*EventPage, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	for _, id := range opts.MonitorIDs {
		if id <= 0 {
			return nil, &errs.ValidationError{Msg: fmt.Sprintf("monitor id must be positive, got %d", id)}
		}
	}

	var path strings.Builder
	path.WriteString(c.apiURL())
	path.WriteString("/events")
	if len(opts.MonitorIDs) > 0 {
		path.WriteString("/index")
		for _, id := range opts.MonitorIDs {
			fmt.Fprintf(&path, "/MonitorId:%d", id)
		}
	}
	path.WriteString(".json")

	resp, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		req.SetQueryParam("page", strconv.Itoa(opts.Page))
		if opts.Limit > 0 {
			req.SetQueryParam("limit", strconv.Itoa(opts.Limit))
		}
		if !opts.From.IsZero() {
			req.SetQueryParam("from", opts.From.Format(serverTimeFormat))
		}
		if !opts.To.IsZero() {
			req.SetQueryParam("to", opts.To.Format(serverTimeFormat))
		}
		req.SetQueryParam("sort", "StartTime")
		req.SetQueryParam("direction", "desc")
		return req.Get(path.String())
	})
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Events     json.RawMessage   `json:"events"`
		Pagination models.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(resp.Body(), &wrapper); err != nil || wrapper.Events == nil {
		return nil, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var events []models.Event
	if err := json.Unmarshal(wrapper.Events, &events); err != nil {
		return nil, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if events == nil {
		events = []models.Event{}
	}

	return &EventPage{
		Events:      events,
		CurrentPage: opts.Page,
		TotalPages:  wrapper.Pagination.PageCount.Int(),
	}, nil
}
