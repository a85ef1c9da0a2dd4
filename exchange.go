package gobayeux

import (
	"context"
	"sync"
	"time"
)

// Exchange is one batch of messages sent to the server together with the
// eventual reply. An exchange resolves exactly once: with the response batch,
// with a failure, or with ErrExchangeCanceled when it is abandoned.
type Exchange struct {
	messages []Message
	ctx      context.Context
	cancel   context.CancelFunc

	once       sync.Once
	done       chan struct{}
	response   []Message
	err        error
	onComplete func(*Exchange)

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewExchange creates an exchange for the given messages. onComplete, when
// non-nil, runs on the goroutine that resolves the exchange.
func NewExchange(ctx context.Context, ms []Message, onComplete func(*Exchange)) *Exchange {
	ctx, cancel := context.WithCancel(ctx)
	return &Exchange{
		messages:   ms,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
}

// Context is canceled when the exchange is abandoned. Transports bind the
// underlying request to it.
func (e *Exchange) Context() context.Context {
	return e.ctx
}

// Messages returns the batch being sent
func (e *Exchange) Messages() []Message {
	return e.messages
}

// Resolve completes the exchange. Only the first call has an effect; it
// reports whether this call resolved the exchange.
func (e *Exchange) Resolve(response []Message, err error) bool {
	resolved := false
	e.once.Do(func() {
		resolved = true
		e.response = response
		e.err = err
		e.cancel()
		close(e.done)
		e.stopTimer()
		if e.onComplete != nil {
			e.onComplete(e)
		}
	})
	return resolved
}

// ExpireAfter resolves the exchange with err once d elapses, unless it is
// resolved first. It has no effect on a resolved exchange.
func (e *Exchange) ExpireAfter(d time.Duration, err error) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	select {
	case <-e.done:
		return
	default:
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d, func() {
		e.Resolve(nil, err)
	})
}

func (e *Exchange) stopTimer() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Cancel abandons the exchange and releases the underlying request
func (e *Exchange) Cancel() {
	e.Resolve(nil, ErrExchangeCanceled)
}

// Done is closed once the exchange is resolved
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Result returns the response and error. It is only meaningful after Done
// is closed.
func (e *Exchange) Result() ([]Message, error) {
	<-e.done
	return e.response, e.err
}
