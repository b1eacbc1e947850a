package security

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/WhileEndless/go-rawclient/pkg/request"
	"github.com/WhileEndless/go-rawclient/pkg/response"
)

// StatusChallenge recognises interstitial pages that answer with a
// throttling status and a known page element, waits the advertised
// Retry-After interval and asks for the page again.
type StatusChallenge struct {
	// Label names the detector in logs.
	Label string
	// Codes are the statuses that can carry the page.
	Codes []int
	// Marker is a CSS selector present only on the interstitial.
	Marker string
	// Wait is used when Retry-After is missing; MaxWait caps it.
	Wait    time.Duration
	MaxWait time.Duration
	// Sleep pauses between the challenge and the retry.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewStatusChallenge returns a detector for pages matching marker served
// with 503, 429 or 403.
func NewStatusChallenge(label, marker string) *StatusChallenge {
	return &StatusChallenge{
		Label:   label,
		Codes:   []int{503, 429, 403},
		Marker:  marker,
		Wait:    5 * time.Second,
		MaxWait: 30 * time.Second,
	}
}

func (c *StatusChallenge) Name() string { return c.Label }

func (c *StatusChallenge) Encountered(_ context.Context, _ Dispatcher, _ *request.Request, res *response.Response) (bool, error) {
	if res == nil || !slices.Contains(c.Codes, res.Code()) {
		return false, nil
	}
	doc, err := res.Document()
	if err != nil {
		return false, err
	}
	return doc.Find(c.Marker).Length() > 0, nil
}

func (c *StatusChallenge) Bypass(ctx context.Context, d Dispatcher, req *request.Request, res *response.Response) (*response.Response, error) {
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(ctx, c.retryAfter(res, time.Now())); err != nil {
		return nil, err
	}

	again := request.Get(req.URL)
	again.Expect = req.Expect
	again.Headers = req.Headers.Clone()
	again.Port = req.Port
	again.NoSSL = req.NoSSL
	fresh := d.Do(ctx, again)
	if fresh == nil || fresh.Synthetic() {
		return nil, nil
	}
	return fresh, nil
}

// retryAfter reads Retry-After as seconds or an HTTP date.
func (c *StatusChallenge) retryAfter(res *response.Response, now time.Time) time.Duration {
	wait := c.Wait
	if v := strings.TrimSpace(res.Header("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			wait = max(at.Sub(now), 0)
		}
	}
	if c.MaxWait > 0 && wait > c.MaxWait {
		wait = c.MaxWait
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
