// Package actor provides the message substrate the trading components run
// on: each component owns a bounded mailbox processed by a single goroutine,
// so component state needs no locks.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

var (
	// ErrUnavailable is returned when a mailbox is saturated and the
	// overflow policy is OverflowFail.
	ErrUnavailable = errors.New("mailbox unavailable")

	// ErrTimeout is returned when a request/response call is not answered
	// within the mailbox timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrClosed is returned once a mailbox has been stopped.
	ErrClosed = errors.New("mailbox closed")
)

// IsRetryable reports whether err is a transient substrate failure (saturated
// mailbox or timeout) as opposed to a store or business error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// Overflow selects what senders do when a mailbox is full.
type Overflow int

const (
	// OverflowFail rejects the message with ErrUnavailable.
	OverflowFail Overflow = iota
	// OverflowBlock waits for capacity, the caller's ctx, or shutdown.
	OverflowBlock
)

// ParseOverflow maps "fail" / "block" to an Overflow policy.
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "fail":
		return OverflowFail, nil
	case "block":
		return OverflowBlock, nil
	default:
		return OverflowFail, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Options configures a Mailbox.
type Options struct {
	MailboxSize int
	Timeout     time.Duration // request/response wait bound; 0 disables it
	Overflow    Overflow
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		MailboxSize: 1000,
		Timeout:     5 * time.Second,
		Overflow:    OverflowFail,
	}
}

type job func(ctx context.Context)

// Mailbox is a bounded FIFO queue drained by exactly one goroutine.
type Mailbox struct {
	name     string
	queue    chan job
	timeout  time.Duration
	overflow Overflow
	log      *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
	wg        conc.WaitGroup
}

// New creates a stopped Mailbox. Call Start before sending.
func New(name string, opts Options, log *slog.Logger) *Mailbox {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultOptions().MailboxSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mailbox{
		name:     name,
		queue:    make(chan job, opts.MailboxSize),
		timeout:  opts.Timeout,
		overflow: opts.Overflow,
		log:      log.With("mailbox", name),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the mailbox name.
func (m *Mailbox) Name() string { return m.name }

// Start launches the processing goroutine. Jobs receive ctx, which outlives
// any individual caller; it is the component's lifetime context.
func (m *Mailbox) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Go(func() {
			defer close(m.done)
			m.loop(ctx)
		})
	})
}

// Stop ends processing after the in-flight job and waits for the goroutine.
// Queued jobs are abandoned; pending Ask callers receive ErrClosed.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	m.wg.Wait()
}

func (m *Mailbox) loop(ctx context.Context) {
	for {
		select {
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		case j := <-m.queue:
			m.run(ctx, j)
		}
	}
}

func (m *Mailbox) run(ctx context.Context, j job) {
	defer func() {
		if p := recover(); p != nil {
			m.log.Error("message handler panicked", "panic", p)
		}
	}()
	j(ctx)
}

func (m *Mailbox) enqueue(ctx context.Context, j job) error {
	select {
	case <-m.quit:
		return ErrClosed
	case <-m.done:
		return ErrClosed
	default:
	}

	if m.overflow == OverflowBlock {
		select {
		case m.queue <- j:
			return nil
		case <-m.quit:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case m.queue <- j:
		return nil
	default:
		return fmt.Errorf("%s: %w", m.name, ErrUnavailable)
	}
}

// Tell enqueues fn without waiting for it to run.
func (m *Mailbox) Tell(ctx context.Context, fn func(ctx context.Context)) error {
	return m.enqueue(ctx, fn)
}

type result[R any] struct {
	val R
	err error
}

// Ask enqueues fn on m and waits for its result, the mailbox timeout, the
// caller's ctx, or shutdown. On timeout the job still runs to completion; its
// result is dropped.
func Ask[R any](ctx context.Context, m *Mailbox, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	reply := make(chan result[R], 1)

	err := m.enqueue(ctx, func(jctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				reply <- result[R]{err: fmt.Errorf("%s: handler panicked: %v", m.name, p)}
			}
		}()
		v, err := fn(jctx)
		reply <- result[R]{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	var expired <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-reply:
		return res.val, res.err
	case <-expired:
		return zero, fmt.Errorf("%s: %w after %s", m.name, ErrTimeout, m.timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		// The loop may have delivered the reply just before exiting.
		select {
		case res := <-reply:
			return res.val, res.err
		default:
			return zero, ErrClosed
		}
	}
}
