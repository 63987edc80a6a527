package llm

import (
	"context"
	"io"
)

// Fragment is one unit of incremental output. A fragment with Err set is
// terminal and its Text carries the error marker.
type Fragment struct {
	Text string
	Err  bool
}

// Stream is a finite, non-restartable sequence of fragments. Recv returns
// io.EOF once the sequence is exhausted.
type Stream interface {
	Recv() (Fragment, error)
	Close() error
}

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	frags  <-chan Fragment
	errc   <-chan error
	done   bool
}

// newFragmentStream runs producer in its own goroutine and exposes what it
// sends as a Stream. A non-nil error returned by run is reported by Recv
// after all sent fragments have been drained.
func newFragmentStream(ctx context.Context, run func(context.Context, chan<- Fragment) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Fragment, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(ch)
		errc <- run(streamCtx, ch)
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, frags: ch, errc: errc}
}

func (s *channelStream) Recv() (Fragment, error) {
	if s.done {
		return Fragment{}, io.EOF
	}
	// Drain buffered fragments before looking at ctx.Done() so a completed
	// producer never loses its tail.
	select {
	case frag, ok := <-s.frags:
		if ok {
			return frag, nil
		}
		return s.finish()
	default:
	}

	select {
	case <-s.ctx.Done():
		s.done = true
		return Fragment{}, s.ctx.Err()
	case frag, ok := <-s.frags:
		if ok {
			return frag, nil
		}
		return s.finish()
	}
}

func (s *channelStream) finish() (Fragment, error) {
	s.done = true
	if err := <-s.errc; err != nil {
		return Fragment{}, err
	}
	return Fragment{}, io.EOF
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// sliceStream replays a fixed set of fragments.
type sliceStream struct {
	frags []Fragment
	pos   int
}

// NewSliceStream returns a Stream over texts.
func NewSliceStream(texts ...string) Stream {
	frags := make([]Fragment, 0, len(texts))
	for _, t := range texts {
		frags = append(frags, Fragment{Text: t})
	}
	return &sliceStream{frags: frags}
}

func (s *sliceStream) Recv() (Fragment, error) {
	if s.pos >= len(s.frags) {
		return Fragment{}, io.EOF
	}
	frag := s.frags[s.pos]
	s.pos++
	return frag, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.frags)
	return nil
}

// errorStream yields a single terminal error fragment.
func errorStream(err error) Stream {
	return &sliceStream{frags: []Fragment{{Text: ErrorText(err), Err: true}}}
}

// boundaryStream guarantees the adapter contract on top of a provider
// stream: at most one error fragment, always last, and Recv never returns
// anything but io.EOF as an error.
type boundaryStream struct {
	inner Stream
	done  bool
	onErr func(error)
}

func (s *boundaryStream) Recv() (frag Fragment, err error) {
	if s.done {
		return Fragment{}, io.EOF
	}
	defer func() {
		if r := recover(); r != nil {
			s.done = true
			perr := panicError(r)
			s.report(perr)
			frag, err = Fragment{Text: ErrorText(perr), Err: true}, nil
		}
	}()

	frag, err = s.inner.Recv()
	if err == io.EOF {
		s.done = true
		return Fragment{}, io.EOF
	}
	if err != nil {
		s.done = true
		s.report(err)
		return Fragment{Text: ErrorText(err), Err: true}, nil
	}
	if frag.Err {
		s.done = true
		if !IsErrorText(frag.Text) {
			frag.Text = ErrorPrefix + " " + frag.Text
		}
	}
	return frag, nil
}

func (s *boundaryStream) report(err error) {
	if s.onErr != nil {
		s.onErr(err)
	}
}

func (s *boundaryStream) Close() error {
	s.done = true
	return s.inner.Close()
}

// Collect drains a stream, returning the concatenated text and the error
// fragment text if the stream ended with one.
func Collect(stream Stream) (text string, errText string) {
	defer stream.Close()
	var buf []byte
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			return string(buf), ""
		}
		if err != nil {
			return string(buf), ErrorText(err)
		}
		if frag.Err {
			return string(buf), frag.Text
		}
		buf = append(buf, frag.Text...)
	}
}
