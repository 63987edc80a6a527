package llm

import (
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// Default re-chunking policy.
const (
	DefaultMinChunk    = 5
	DefaultMaxInterval = 100 * time.Millisecond
)

// AggregatorConfig controls when buffered text is released.
type AggregatorConfig struct {
	// MinChunk is the buffered character count that forces a flush.
	MinChunk int
	// MaxInterval is the time since the last flush that forces a flush.
	MaxInterval time.Duration
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// DefaultAggregatorConfig returns the default policy.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{MinChunk: DefaultMinChunk, MaxInterval: DefaultMaxInterval}
}

// aggregator re-batches fragments from src. The buffer is released when it
// holds at least MinChunk characters or MaxInterval has passed since the
// last release, whichever comes first; both are checked as each fragment
// arrives.
type aggregator struct {
	src  Stream
	cfg  AggregatorConfig
	now  func() time.Time
	last time.Time

	buf     strings.Builder
	bufLen  int
	pending *Fragment
	done    bool
}

// Aggregate wraps src with the re-chunking policy. The returned stream never
// returns an error other than io.EOF; an upstream fault becomes one final
// error fragment.
func Aggregate(src Stream, cfg AggregatorConfig) Stream {
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = DefaultMinChunk
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &aggregator{src: src, cfg: cfg, now: now, last: now()}
}

func (a *aggregator) Recv() (Fragment, error) {
	if a.pending != nil {
		frag := *a.pending
		a.pending = nil
		return frag, nil
	}
	if a.done {
		return Fragment{}, io.EOF
	}

	for {
		frag, err := a.src.Recv()
		switch {
		case err == io.EOF:
			a.done = true
			if a.bufLen > 0 {
				return a.flush(), nil
			}
			return Fragment{}, io.EOF
		case err != nil:
			return a.fail(ErrorText(err))
		case frag.Err:
			text := frag.Text
			if !IsErrorText(text) {
				text = ErrorPrefix + " " + text
			}
			return a.fail(text)
		}

		a.buf.WriteString(frag.Text)
		a.bufLen += utf8.RuneCountInString(frag.Text)
		if a.bufLen >= a.cfg.MinChunk || a.now().Sub(a.last) >= a.cfg.MaxInterval {
			if a.bufLen > 0 {
				return a.flush(), nil
			}
		}
	}
}

// fail releases buffered text first, then the error fragment, then stops.
func (a *aggregator) fail(text string) (Fragment, error) {
	a.done = true
	errFrag := Fragment{Text: text, Err: true}
	if a.bufLen > 0 {
		a.pending = &errFrag
		return a.flush(), nil
	}
	return errFrag, nil
}

func (a *aggregator) flush() Fragment {
	frag := Fragment{Text: a.buf.String()}
	a.buf.Reset()
	a.bufLen = 0
	a.last = a.now()
	return frag
}

func (a *aggregator) Close() error {
	a.done = true
	a.pending = nil
	return a.src.Close()
}
