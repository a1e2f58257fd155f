// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"strings"

	"go.uber.org/zap"
)

// progressTracker turns cumulative partial text into increments. Each poll
// reports the job's text so far; only the part not yet delivered is passed
// on. Text that does not extend what was seen (the service restarted its
// buffer) is delivered whole. Identical text is never delivered twice.
type progressTracker struct {
	deliver ProgressFunc
	logger  *zap.Logger
	seen    string
}

func newProgressTracker(deliver ProgressFunc, logger *zap.Logger) *progressTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &progressTracker{deliver: deliver, logger: logger}
}

// observe records text and delivers its unseen increment.
func (p *progressTracker) observe(text string) {
	if text == "" || text == p.seen {
		return
	}
	increment := text
	if strings.HasPrefix(text, p.seen) {
		increment = text[len(p.seen):]
	}
	p.seen = text
	if p.deliver == nil || strings.TrimSpace(increment) == "" {
		return
	}
	p.call(increment)
}

// call invokes the callback. A panicking callback is logged and ignored.
func (p *progressTracker) call(increment string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn("progress callback panicked", zap.Any("panic", rec))
		}
	}()
	p.deliver(increment)
}
