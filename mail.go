package authgrid

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// mailDispatcher sends email off the request path. Delivery is best effort:
// a failed or dropped send never fails the workflow that requested it, and
// Close drains queued mail before returning.
type mailDispatcher struct {
	mailer    Mailer
	ch        chan Mail
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	sendTimeout time.Duration
}

func newMailDispatcher(mailer Mailer, buffer int, sendTimeout time.Duration) *mailDispatcher {
	if mailer == nil {
		return nil
	}
	if buffer <= 0 {
		buffer = 1
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	d := &mailDispatcher{
		mailer:      mailer,
		ch:          make(chan Mail, buffer),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *mailDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case mail := <-d.ch:
			d.deliver(mail)
		case <-d.done:
			for {
				select {
				case mail := <-d.ch:
					d.deliver(mail)
				default:
					return
				}
			}
		}
	}
}

func (d *mailDispatcher) deliver(mail Mail) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	// Delivery errors are swallowed; the Mailer owns its own retry policy.
	_ = d.mailer.Send(ctx, mail)
}

// Enqueue hands mail to the worker. A full queue drops the mail and counts it;
// workflows never block on delivery.
func (d *mailDispatcher) Enqueue(mail Mail) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- mail:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

func (d *mailDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *mailDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
