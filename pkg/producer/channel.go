package producer

import (
	"context"
	"sync"

	"github.com/a2aproto/taskengine/pkg/a2a"
)

// Work is the function a ChannelProducer wraps: it receives the
// resumption channel that unblocks each time the executor calls Step,
// and a yield func it calls to publish each increment. Work runs on its
// own goroutine for the lifetime of the task and must return promptly
// after ctx is canceled.
type Work func(ctx context.Context, resume <-chan *a2a.Message, yield func(Yield)) error

// ChannelProducer realizes Producer with the goroutine+two-channel
// strategy: one goroutine runs Work once, blocking on the resume
// channel between yields; Step unblocks it by sending (or, for the
// first call, by the goroutine simply starting) and blocks itself until
// the next yield or the goroutine's return. This mirrors the teacher's
// own pattern of driving a long-lived goroutine through channels rather
// than restarting work from scratch on every call.
type ChannelProducer struct {
	resume chan *a2a.Message
	yields chan Yield
	done   chan error

	cancelOnce sync.Once
	cancel     context.CancelFunc

	started bool
}

// NewChannelProducer starts work on its own goroutine, derived from ctx
// so Cancel can unblock a Step that's waiting on a yield that will
// never come.
func NewChannelProducer(ctx context.Context, work Work) *ChannelProducer {
	ctx, cancel := context.WithCancel(ctx)

	p := &ChannelProducer{
		resume: make(chan *a2a.Message, 1),
		yields: make(chan Yield, 1),
		done:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		defer close(p.done)
		err := work(ctx, p.resume, func(y Yield) {
			select {
			case p.yields <- y:
			case <-ctx.Done():
			}
		})
		p.done <- err
	}()

	return p
}

// Step unblocks the worker (sending input if resuming) and waits for
// either its next yield, its return, or ctx cancellation.
func (p *ChannelProducer) Step(ctx context.Context, input *a2a.Message) (Yield, error) {
	if !p.started {
		p.started = true
	} else if input == nil {
		// A nil continuation is only a nudge: drop it when an earlier one
		// is still unread, so work that never reads resume between yields
		// cannot leave Step blocked on a full channel.
		select {
		case p.resume <- nil:
		default:
		}
	} else {
		// Discard a stale nil nudge so the worker receives the real input.
		select {
		case <-p.resume:
		default:
		}
		select {
		case p.resume <- input:
		case <-ctx.Done():
			return Yield{}, ctx.Err()
		}
	}

	select {
	case y := <-p.yields:
		return y, nil
	case err := <-p.done:
		if err != nil {
			return Yield{}, err
		}
		return Yield{Kind: YieldDone}, nil
	case <-ctx.Done():
		return Yield{}, ctx.Err()
	}
}

// Cancel stops the worker's context; safe to call multiple times and
// concurrently with an in-flight Step.
func (p *ChannelProducer) Cancel() {
	p.cancelOnce.Do(func() {
		p.cancel()
	})
}
