package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// A working toolchain rarely changes under a running agent.
	defaultCacheTTL = 5 * time.Minute

	// A missing ffmpeg is re-checked sooner so installing it is noticed
	// without a restart, but not on every status poll.
	defaultFailureTTL = 10 * time.Second
)

// CachedDoctor remembers the outcome of the last tool check. Every run
// starts with Get, so a missing ffmpeg fails the run up front with
// ErrProcessLaunch instead of failing each clip.
type CachedDoctor struct {
	cutter     Cutter
	ttl        time.Duration
	failureTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	caps    *Capabilities
	err     error
	checked time.Time
}

// NewCachedDoctor creates a CachedDoctor that checks the tools of cutter.
func NewCachedDoctor(cutter Cutter, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDoctor{
		cutter:     cutter,
		ttl:        defaultCacheTTL,
		failureTTL: defaultFailureTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the last outcome while it is fresh and checks again
// otherwise. Failures are ErrProcessLaunch.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	age := d.now().Sub(d.checked)
	switch {
	case d.caps != nil && age < d.ttl:
		caps := d.caps
		d.mu.Unlock()
		return caps, nil
	case d.err != nil && age < d.failureTTL:
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	return d.Refresh(ctx)
}

// Peek returns the capabilities of the last successful check, or nil.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

// Refresh checks the tools now.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.cutter.Doctor(ctx)
	d.checked = d.now()
	if err != nil {
		if !errors.Is(err, ErrProcessLaunch) {
			err = fmt.Errorf("%w: %v", ErrProcessLaunch, err)
		}
		if d.caps != nil || d.err == nil {
			d.logger.Warn("ffmpeg is not usable, runs will fail until it is fixed", "error", err)
		}
		d.caps, d.err = nil, err
		return nil, err
	}

	if d.caps == nil {
		d.logger.Info("ffmpeg ready",
			"ffmpeg", caps.FFmpegPath,
			"version", caps.FFmpegVersion,
			"ffprobe", caps.FFprobePath,
		)
	}
	d.caps, d.err = caps, nil
	return caps, nil
}

// Invalidate forgets the last outcome, for example after the tool paths
// were changed.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.caps, d.err = nil, nil
	d.checked = time.Time{}
	d.mu.Unlock()
}
