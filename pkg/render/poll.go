package render

import (
	"context"
	"time"
)

// DefaultPollInterval is the delay between status queries.
const DefaultPollInterval = 3 * time.Second

// Poller waits for a render job to reach a terminal state.
//
// Each iteration sleeps Interval and then queries status once. The loop ends
// on done (nil error), on a fatal render error (*FatalError), when MaxWait
// elapses (*TimeoutError), when ctx is cancelled, or when a status query
// fails. Status queries are never retried.
type Poller struct {
	Interval time.Duration

	// MaxWait bounds the whole wait. Zero leaves only ctx as the bound.
	MaxWait time.Duration

	// OnProgress, if set, is called after every successful status query.
	OnProgress func(Progress)
}

// Await polls q for renderID until a terminal state.
//
// The returned progress is the last status observed, also on error when one
// was observed.
func (p *Poller) Await(ctx context.Context, q StatusQuerier, renderID string) (*Progress, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	waitCtx := ctx
	if p.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.MaxWait)
		defer cancel()
	}

	start := time.Now()
	queries := 0
	var last *Progress

	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{RenderID: renderID, Queries: queries, Waited: time.Since(start), Last: last}
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return last, timedOut()
		case <-timer.C:
		}

		queries++
		progress, err := q.Status(waitCtx, renderID)
		if err != nil {
			if waitCtx.Err() != nil {
				return last, timedOut()
			}
			return last, err
		}
		if progress.RenderID == "" {
			progress.RenderID = renderID
		}
		last = progress

		if p.OnProgress != nil {
			p.OnProgress(*progress)
		}

		switch {
		case progress.FatalErrorEncountered:
			return progress, &FatalError{Progress: *progress}
		case progress.Done:
			return progress, nil
		}

		timer.Reset(interval)
	}
}
