package gobayeux

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"
)

// Client drives one Bayeux session: it handshakes, keeps a single
// /meta/connect outstanding, retries failures after the backoff delay,
// handshakes again when the server forgets the session and routes every
// received message to the matching channels.
//
// All retries are scheduled with timers, no goroutine sleeps while the
// client waits.
type Client struct {
	bayeux   *BayeuxClient
	sm       *ConnectionStateMachine
	channels *channelRegistry
	cookies  *CookieStore
	backoff  *BackoffPolicy
	opts     Options
	logger   Logger

	mu           sync.Mutex
	clientID     string
	advice       Advice
	epoch        uint64
	timer        *time.Timer
	inflight     *Exchange
	exchanges    map[*Exchange]struct{}
	queue        []pendingMessage
	batching     int
	batch        []pendingMessage
	handshakeExt map[string]interface{}
	firstConnect bool
	lastErr      error
}

type pendingMessage struct {
	message  Message
	callback func(Message, error)
}

// effects collects the work decided while c.mu is held. It runs after the
// lock is released so listeners, hooks and transports may call back into
// the client.
type effects struct {
	cancel    []*Exchange
	failures  []error
	dispatch  []Message
	callbacks []func()
	send      []*Exchange
}

// NewClient creates a new high-level client
func NewClient(serverAddress string, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.Logger == nil {
		options.Logger = newDiscardLogger()
	}
	if options.RetryFilter == nil {
		options.RetryFilter = func(error) bool { return true }
	}
	if options.SessionUnknown == nil {
		options.SessionUnknown = IsSessionUnknown
	}
	if options.MaxNetworkDelay <= 0 {
		options.MaxNetworkDelay = DefaultMaxNetworkDelay
	}
	if options.Version == "" {
		options.Version = DefaultVersion
	}

	if _, err := url.Parse(serverAddress); err != nil {
		return nil, err
	}

	cookies := NewCookieStore()
	transport := options.BayeuxTransport
	if transport == nil {
		if options.Client != nil && options.Client.Jar == nil {
			options.Client.Jar = cookies
		}
		lp, err := NewLongPollingTransport(serverAddress, options.Client, options.Transport, cookies)
		if err != nil {
			return nil, err
		}
		transport = lp
	}

	c := &Client{
		bayeux:    NewBayeuxClient(transport, options.Logger, options.Metrics),
		sm:        NewConnectionStateMachine(),
		channels:  newChannelRegistry(options.Logger, options.Metrics),
		cookies:   cookies,
		backoff:   NewBackoffPolicy(options.BackoffIncrement, options.MaxBackoff),
		opts:      options,
		logger:    options.Logger,
		exchanges: make(map[*Exchange]struct{}),
	}
	c.sm.observer = func(from, to State) {
		c.logger.WithField("from", from.String()).WithField("to", to.String()).Debug("state changed")
	}

	for _, ext := range options.Extensions {
		if err := c.bayeux.UseExtension(ext); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handshake starts a new session. It returns once the /meta/handshake is
// handed to the transport; the connect loop starts on its own when the
// handshake succeeds.
func (c *Client) Handshake() error {
	return c.HandshakeWithExt(nil)
}

// HandshakeWithExt is Handshake with an ext field sent on every handshake of
// the session, including the ones after a lost session
func (c *Client) HandshakeWithExt(ext map[string]interface{}) error {
	logger := c.logger.WithField("at", "handshake")
	logger.Debug("starting")

	c.mu.Lock()
	if current := c.sm.Current(); current != Disconnected {
		c.mu.Unlock()
		err := newBadHandshake(current)
		logger.WithError(err).Debug("invalid action for current state")
		return &HandshakeFailedError{err}
	}
	c.handshakeExt = copyExt(ext)
	c.epoch++
	c.advice = Advice{}
	c.lastErr = nil
	c.backoff.Reset()
	ex, err := c.handshakeLocked()
	c.mu.Unlock()
	if err != nil {
		logger.WithError(err).Debug("unable to build handshake")
		return err
	}
	c.bayeux.Send(ex)
	return nil
}

// HandshakeAndWait handshakes and blocks until the session is connected,
// the client gives up or the timeout elapses
func (c *Client) HandshakeAndWait(timeout time.Duration) error {
	if err := c.Handshake(); err != nil {
		return err
	}
	c.WaitFor(timeout, Connected, Connecting, Disconnected)
	switch c.State() {
	case Connected, Connecting:
		return nil
	}
	if err := c.Err(); err != nil {
		return err
	}
	if c.State() == Disconnected {
		return &HandshakeFailedError{ErrClientNotConnected}
	}
	return &HandshakeFailedError{context.DeadlineExceeded}
}

// WaitFor blocks until the client is in or enters one of the states, or the
// timeout elapses. It reports whether a state was reached.
func (c *Client) WaitFor(timeout time.Duration, states ...State) bool {
	return c.sm.WaitForTimeout(timeout, states...)
}

// State returns the current state of the session
func (c *Client) State() State {
	return c.sm.Current()
}

// ClientID returns the clientId of the current session, empty when there is
// none
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// BackoffCount returns the number of consecutive failed handshakes or
// connects
func (c *Client) BackoffCount() int {
	return c.backoff.Count()
}

// Err returns the last failure recorded by the session, nil after a
// successful handshake or connect
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// GetChannel returns the ClientChannel for a channel name or pattern. The
// same channel is returned for every call with the same name.
func (c *Client) GetChannel(channel Channel) *ClientChannel {
	return c.channels.getOrCreate(channel, c)
}

// SetCookie stores a cookie sent with every request
func (c *Client) SetCookie(name, value string) {
	c.cookies.Set(name, value)
}

// SetCookieWithMaxAge stores a cookie that expires after maxAge
func (c *Client) SetCookieWithMaxAge(name, value string, maxAge time.Duration) {
	c.cookies.SetWithMaxAge(name, value, maxAge)
}

// GetCookie returns the value of an unexpired cookie
func (c *Client) GetCookie(name string) (string, bool) {
	return c.cookies.Get(name)
}

// UseExtension registers a MessageExtender
func (c *Client) UseExtension(ext MessageExtender) error {
	return c.bayeux.UseExtension(ext)
}

// RemoveExtension unregisters a MessageExtender
func (c *Client) RemoveExtension(ext MessageExtender) bool {
	return c.bayeux.RemoveExtension(ext)
}

// Batch sends every message published, subscribed or unsubscribed inside fn
// in a single exchange. Batches nest; the outermost one sends.
func (c *Client) Batch(fn func()) (err error) {
	c.mu.Lock()
	c.batching++
	c.mu.Unlock()

	defer func() {
		fx := &effects{}
		c.mu.Lock()
		c.batching--
		if c.batching == 0 && len(c.batch) > 0 {
			pending := c.batch
			c.batch = nil
			switch c.sm.Current() {
			case Connected, Connecting:
				fx.send = append(fx.send, c.messagesLocked(pending))
			case Handshaking, Rehandshaking:
				for _, pm := range pending {
					if !pm.message.IsMeta() {
						c.queue = append(c.queue, pm)
					}
				}
			default:
				c.failLocked(pending, ErrClientNotConnected, fx)
				err = ErrClientNotConnected
			}
		}
		c.mu.Unlock()
		c.apply(fx)
	}()

	fn()
	return nil
}

// Disconnect sends a /meta/disconnect and stops the session. The local
// teardown happens whatever the server answers; the error reports a failed
// or refused disconnect.
func (c *Client) Disconnect(ctx context.Context) error {
	logger := c.logger.WithField("at", "disconnect")

	fx := &effects{}
	c.mu.Lock()
	switch c.sm.Current() {
	case Disconnected:
		c.mu.Unlock()
		return nil
	case Disconnecting:
		c.mu.Unlock()
		c.sm.WaitFor(ctx, Disconnected)
		return nil
	}
	if err := c.sm.ProcessEvent(disconnectSent); err != nil {
		c.mu.Unlock()
		return DisconnectFailedError{err}
	}
	clientID := c.clientID
	c.resetSessionLocked(fx)
	for ex := range c.exchanges {
		fx.cancel = append(fx.cancel, ex)
	}
	c.exchanges = make(map[*Exchange]struct{})
	c.failLocked(c.queue, ErrClientNotConnected, fx)
	c.queue = nil
	c.backoff.Reset()
	c.mu.Unlock()
	c.apply(fx)

	var err error
	if clientID != "" {
		var response []Message
		response, err = c.bayeux.Disconnect(ctx, clientID, c.opts.MaxNetworkDelay)
		if response == nil && err != nil {
			response = []Message{failureMessage(Message{Channel: MetaDisconnect, ClientID: clientID}, err)}
		}
		for _, m := range response {
			c.channels.dispatch(m)
		}
		if err != nil {
			logger.WithError(err).Debug("disconnect was not acknowledged")
		}
	}

	c.mu.Lock()
	_ = c.sm.ProcessEvent(disconnectCompleted)
	c.mu.Unlock()
	return err
}

func (c *Client) apply(fx *effects) {
	for _, ex := range fx.cancel {
		ex.Cancel()
	}
	for _, err := range fx.failures {
		c.opts.Metrics.failure(failureKind(err))
		c.opts.Hooks.fire(err)
	}
	for _, m := range fx.dispatch {
		c.channels.dispatch(m)
	}
	for _, callback := range fx.callbacks {
		callback()
	}
	for _, ex := range fx.send {
		c.bayeux.Send(ex)
	}
}

func (c *Client) handshakeLocked() (*Exchange, error) {
	ms, err := c.bayeux.handshakeRequest(c.opts.Version, c.handshakeExt)
	if err != nil {
		return nil, err
	}
	if err := c.sm.ProcessEvent(handshakeSent); err != nil {
		return nil, &HandshakeFailedError{err}
	}

	epoch := c.epoch
	start := time.Now()
	var ex *Exchange
	ex = c.bayeux.NewExchange(context.Background(), ms, c.opts.MaxNetworkDelay, func(response []Message, err error) {
		c.handshakeCompleted(ex, epoch, start, response, err)
	})
	c.inflight = ex
	c.exchanges[ex] = struct{}{}
	return ex, nil
}

func (c *Client) handshakeCompleted(ex *Exchange, epoch uint64, start time.Time, response []Message, err error) {
	if errors.Is(err, ErrExchangeCanceled) {
		return
	}
	logger := c.logger.WithField("at", "handshake")

	fx := &effects{}
	c.mu.Lock()
	delete(c.exchanges, ex)
	if epoch != c.epoch || c.inflight != ex {
		c.mu.Unlock()
		return
	}
	c.inflight = nil

	reply, err := handshakeReply(response, err)
	if err == nil && reply.Successful {
		c.handshakeSucceededLocked(reply, fx)
	} else {
		c.handshakeFailedLocked(ex.Messages()[0], reply, err, fx)
	}
	failure := c.lastErr
	c.mu.Unlock()
	c.apply(fx)

	if failure != nil {
		logger.WithError(failure).Debug("handshake failed")
		return
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing")
}

func handshakeReply(response []Message, err error) (Message, error) {
	if err != nil {
		return Message{}, err
	}
	if len(response) > 1 {
		return Message{}, &ProtocolError{Reason: "unexpected handshake response", Err: ErrTooManyMessages}
	}
	if len(response) == 0 || response[0].Channel != MetaHandshake {
		return Message{}, &ProtocolError{Reason: "unexpected handshake response", Err: ErrBadChannel}
	}
	reply := response[0]
	if reply.Successful && reply.ClientID == "" {
		return Message{}, &ProtocolError{Reason: "handshake reply without clientId", Err: ErrMissingClientID}
	}
	return reply, nil
}

func (c *Client) handshakeSucceededLocked(reply Message, fx *effects) {
	c.clientID = reply.ClientID
	c.advice = c.advice.merge(reply.Advice)
	c.backoff.UpdateAdvice(c.advice)
	c.backoff.Reset()
	c.lastErr = nil
	_ = c.sm.ProcessEvent(handshakeSucceeded)
	c.opts.Metrics.handshake(true)
	fx.dispatch = append(fx.dispatch, reply)

	pending := make([]pendingMessage, 0)
	for _, ch := range c.channels.subscribed() {
		m, err := c.bayeux.subscribeRequest(c.clientID, ch.id)
		if err != nil {
			continue
		}
		ch.setStatus(SubscriptionPending)
		pending = append(pending, pendingMessage{message: m})
	}
	pending = append(pending, c.queue...)
	c.queue = nil
	if len(pending) > 0 {
		fx.send = append(fx.send, c.messagesLocked(pending))
	}

	c.firstConnect = true
	c.connectLocked(fx)
}

func (c *Client) handshakeFailedLocked(request, reply Message, err error, fx *effects) {
	c.opts.Metrics.handshake(false)
	terminal := false
	if err != nil {
		fx.failures = append(fx.failures, err)
		fx.dispatch = append(fx.dispatch, failureMessage(request, err))
		c.lastErr = &HandshakeFailedError{err}
	} else {
		c.advice = c.advice.merge(reply.Advice)
		c.backoff.UpdateAdvice(c.advice)
		fx.dispatch = append(fx.dispatch, reply)
		c.lastErr = newHandshakeError(reply.Error)
		terminal = reply.GetAdvice().MustNotRetryOrHandshake()
	}

	if terminal || !c.opts.RetryFilter(c.lastErr) {
		c.terminateLocked(c.lastErr, fx)
		return
	}
	c.scheduleLocked(c.backoff.failure(handshakeRequest), c.resumeHandshake)
}

func (c *Client) resumeHandshake(epoch uint64) {
	fx := &effects{}
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	ex, err := c.handshakeLocked()
	if err != nil {
		c.terminateLocked(err, fx)
	} else {
		fx.send = append(fx.send, ex)
	}
	c.mu.Unlock()
	c.apply(fx)
}

// connectLocked sends the next /meta/connect unless one is already
// outstanding
func (c *Client) connectLocked(fx *effects) {
	if c.inflight != nil {
		return
	}
	logger := c.logger.WithField("at", "connect")
	ms, err := c.bayeux.connectRequest(c.clientID, c.firstConnect)
	if err != nil {
		c.terminateLocked(err, fx)
		return
	}
	if err := c.sm.ProcessEvent(connectSent); err != nil {
		logger.WithError(err).Debug("invalid action for current state")
		return
	}
	logger.Debug("starting")

	advice := c.advice
	if c.firstConnect {
		advice.Timeout = 0
	}
	epoch := c.epoch
	start := time.Now()
	var ex *Exchange
	ex = c.bayeux.NewExchange(
		context.Background(),
		ms,
		exchangeTimeout(advice, c.opts.MaxNetworkDelay, MetaConnect),
		func(response []Message, err error) {
			c.connectCompleted(ex, epoch, start, response, err)
		},
	)
	c.inflight = ex
	c.exchanges[ex] = struct{}{}
	fx.send = append(fx.send, ex)
}

func (c *Client) connectCompleted(ex *Exchange, epoch uint64, start time.Time, response []Message, err error) {
	if errors.Is(err, ErrExchangeCanceled) {
		return
	}
	logger := c.logger.WithField("at", "connect")

	fx := &effects{}
	c.mu.Lock()
	delete(c.exchanges, ex)
	if epoch != c.epoch || c.inflight != ex {
		c.mu.Unlock()
		return
	}
	c.inflight = nil

	request := ex.Messages()[0]
	fx.dispatch = append(fx.dispatch, response...)
	var reply Message
	if err == nil {
		var ok bool
		if reply, ok = findReply(response, request); !ok {
			err = &ProtocolError{Reason: "connect reply missing", Err: ErrMissingReply}
		}
	}

	switch {
	case err != nil:
		c.connectFailedLocked(request, err, fx)
	case reply.Successful:
		c.connectSucceededLocked(reply, fx)
	default:
		c.connectUnsuccessfulLocked(reply, fx)
	}
	failure := c.lastErr
	c.mu.Unlock()
	c.apply(fx)

	if failure != nil {
		logger.WithError(failure).Debug("connect failed")
		return
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing")
}

func (c *Client) connectSucceededLocked(reply Message, fx *effects) {
	c.advice = c.advice.merge(reply.Advice)
	c.backoff.UpdateAdvice(c.advice)
	c.backoff.Reset()
	c.firstConnect = false
	c.lastErr = nil
	_ = c.sm.ProcessEvent(connectSucceeded)
	c.opts.Metrics.connect(true)

	switch reply.GetAdvice().Reconnect {
	case ReconnectNone:
		c.terminateLocked(nil, fx)
	case ReconnectHandshake:
		c.rehandshakeLocked(fx)
	default:
		c.scheduleLocked(c.advice.IntervalAsDuration(), c.resumeConnect)
	}
}

func (c *Client) connectUnsuccessfulLocked(reply Message, fx *effects) {
	c.advice = c.advice.merge(reply.Advice)
	c.backoff.UpdateAdvice(c.advice)
	c.opts.Metrics.connect(false)

	switch {
	case c.opts.SessionUnknown(reply):
		c.lastErr = &SessionExpiredError{ClientID: c.clientID, Reply: reply}
		c.rehandshakeLocked(fx)
	case reply.GetAdvice().MustNotRetryOrHandshake():
		c.terminateLocked(ConnectionFailedError{ErrFailedToConnect}, fx)
	default:
		c.lastErr = ConnectionFailedError{newApplicationError(reply)}
		c.scheduleLocked(c.backoff.failure(connectRequest), c.resumeConnect)
	}
}

func (c *Client) connectFailedLocked(request Message, err error, fx *effects) {
	c.opts.Metrics.connect(false)
	fx.failures = append(fx.failures, err)
	fx.dispatch = append(fx.dispatch, failureMessage(request, err))
	c.lastErr = ConnectionFailedError{err}

	if !c.opts.RetryFilter(c.lastErr) {
		c.terminateLocked(c.lastErr, fx)
		return
	}
	c.scheduleLocked(c.backoff.failure(connectRequest), c.resumeConnect)
}

func (c *Client) resumeConnect(epoch uint64) {
	fx := &effects{}
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.connectLocked(fx)
	c.mu.Unlock()
	c.apply(fx)
}

// rehandshakeLocked drops the current session and schedules a new handshake.
// Subscriptions are sent again once it succeeds.
func (c *Client) rehandshakeLocked(fx *effects) {
	if err := c.sm.ProcessEvent(rehandshakeRequired); err != nil {
		c.logger.WithField("at", "rehandshake").WithError(err).Debug("invalid action for current state")
		return
	}
	c.opts.Metrics.rehandshake()
	c.logger.WithField("at", "rehandshake").WithField("clientId", c.clientID).Info("session lost, handshaking again")
	c.resetSessionLocked(fx)
	c.scheduleLocked(c.backoff.Delay(), c.resumeHandshake)
}

// terminateLocked stops the session without contacting the server
func (c *Client) terminateLocked(err error, fx *effects) {
	_ = c.sm.ProcessEvent(sessionTerminated)
	if err != nil {
		c.lastErr = err
		c.logger.WithField("at", "terminate").WithError(err).Warn("giving up on the session")
	}
	c.resetSessionLocked(fx)
	c.failLocked(c.queue, ErrClientNotConnected, fx)
	c.queue = nil
}

// resetSessionLocked invalidates timers and exchanges of the current session
func (c *Client) resetSessionLocked(fx *effects) {
	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.inflight != nil {
		fx.cancel = append(fx.cancel, c.inflight)
		delete(c.exchanges, c.inflight)
		c.inflight = nil
	}
	c.clientID = ""
	c.firstConnect = false
	c.channels.markPending()
}

func (c *Client) scheduleLocked(delay time.Duration, fn func(epoch uint64)) {
	if c.timer != nil {
		c.timer.Stop()
	}
	epoch := c.epoch
	c.timer = time.AfterFunc(delay, func() { fn(epoch) })
}

func (c *Client) failLocked(pending []pendingMessage, err error, fx *effects) {
	for _, pm := range pending {
		if pm.callback == nil {
			continue
		}
		callback, failure := pm.callback, failureMessage(pm.message, err)
		fx.callbacks = append(fx.callbacks, func() { callback(failure, err) })
	}
}

// enqueueLocked sends pm now, or adds it to the open batch
func (c *Client) enqueueLocked(pm pendingMessage, fx *effects) {
	if c.batching > 0 {
		c.batch = append(c.batch, pm)
		return
	}
	fx.send = append(fx.send, c.messagesLocked([]pendingMessage{pm}))
}

// messagesLocked creates the exchange for publish, subscribe and
// unsubscribe messages of the current session
func (c *Client) messagesLocked(pending []pendingMessage) *Exchange {
	ms := make([]Message, len(pending))
	for i, pm := range pending {
		ms[i] = pm.message
		ms[i].ClientID = c.clientID
	}
	epoch := c.epoch
	var ex *Exchange
	ex = c.bayeux.NewExchange(context.Background(), ms, c.opts.MaxNetworkDelay, func(response []Message, err error) {
		c.messagesCompleted(ex, epoch, pending, response, err)
	})
	c.exchanges[ex] = struct{}{}
	return ex
}

func (c *Client) messagesCompleted(ex *Exchange, epoch uint64, pending []pendingMessage, response []Message, err error) {
	sent := ex.Messages()
	if errors.Is(err, ErrExchangeCanceled) {
		for i, pm := range pending {
			if pm.callback != nil {
				pm.callback(failureMessage(sent[i], err), err)
			}
		}
		return
	}

	fx := &effects{}
	c.mu.Lock()
	delete(c.exchanges, ex)
	current := epoch == c.epoch
	if err != nil {
		fx.failures = append(fx.failures, err)
	}
	fx.dispatch = append(fx.dispatch, response...)

	sessionLost := false
	for i, pm := range pending {
		request := sent[i]
		reply, replyErr := c.replyFor(request, response, err)
		if err != nil || replyErr == ErrMissingReply {
			fx.dispatch = append(fx.dispatch, reply)
		}
		if replyErr != nil && !reply.Successful && err == nil && c.opts.SessionUnknown(reply) {
			sessionLost = true
			replyErr = &SessionExpiredError{ClientID: request.ClientID, Reply: reply}
		}
		if current {
			c.updateSubscriptionLocked(request, reply, replyErr)
		}
		if pm.callback != nil {
			callback, reply, replyErr := pm.callback, reply, replyErr
			fx.callbacks = append(fx.callbacks, func() { callback(reply, replyErr) })
		}
	}
	if sessionLost && current {
		c.rehandshakeLocked(fx)
	}
	c.mu.Unlock()
	c.apply(fx)
}

// replyFor finds the reply to request. A publish without a reply is
// acknowledged implicitly; a meta request without one is a failure.
func (c *Client) replyFor(request Message, response []Message, err error) (Message, error) {
	if err != nil {
		return failureMessage(request, err), err
	}
	reply, ok := findReply(response, request)
	switch {
	case !ok && request.IsMeta():
		return failureMessage(request, ErrMissingReply), ErrMissingReply
	case !ok:
		return Message{
			Channel:    request.Channel,
			ID:         request.ID,
			ClientID:   request.ClientID,
			Successful: true,
		}, nil
	case !reply.Successful:
		return reply, newApplicationError(reply)
	}
	return reply, nil
}

func (c *Client) updateSubscriptionLocked(request, reply Message, err error) {
	logger := c.logger.WithField("channel", request.Subscription)
	switch request.Channel {
	case MetaSubscribe:
		ch, ok := c.channels.get(request.Subscription)
		if !ok {
			return
		}
		if err == nil {
			ch.setStatus(Subscribed)
			return
		}
		ch.setStatus(SubscriptionFailed)
		logger.WithField("at", "subscribe").
			WithError(SubscriptionFailedError{[]Channel{request.Subscription}, newSubscribeError(reply.Error)}).
			Warn("subscription failed")
	case MetaUnsubscribe:
		if err != nil {
			logger.WithField("at", "unsubscribe").
				WithError(UnsubscribeFailedError{[]Channel{request.Subscription}, newUnsubscribeError(reply.Error)}).
				Warn("unsubscribe failed")
		}
	}
}

func (c *Client) publish(channel Channel, data interface{}, callback func(Message, error)) error {
	logger := c.logger.WithField("at", "publish").WithField("channel", channel)
	m, err := c.bayeux.publishRequest(channel, data)
	if err != nil {
		return err
	}

	fx := &effects{}
	c.mu.Lock()
	switch c.sm.Current() {
	case Disconnected, Disconnecting:
		c.mu.Unlock()
		logger.Debug("cannot publish because client is not connected")
		return ErrClientNotConnected
	case Handshaking, Rehandshaking:
		c.queue = append(c.queue, pendingMessage{m, callback})
	default:
		c.enqueueLocked(pendingMessage{m, callback}, fx)
	}
	c.mu.Unlock()
	c.opts.Metrics.messagePublished()
	c.apply(fx)
	return nil
}

func (c *Client) subscribe(ch *ClientChannel, listener MessageListener) (ListenerID, error) {
	id := c.channels.nextListenerID()

	fx := &effects{}
	c.mu.Lock()
	ch.mu.Lock()
	first := len(ch.subscribers) == 0
	ch.subscribers = append(ch.subscribers, listenerEntry{id, listener})
	if first {
		ch.status = SubscriptionPending
	}
	ch.mu.Unlock()

	if first && c.sm.IsConnected() {
		m, err := c.bayeux.subscribeRequest(c.clientID, ch.id)
		if err != nil {
			c.mu.Unlock()
			ch.mu.Lock()
			ch.subscribers, _ = removeEntry(ch.subscribers, id)
			ch.status = Unsubscribed
			ch.mu.Unlock()
			return 0, err
		}
		c.enqueueLocked(pendingMessage{message: m}, fx)
	}
	c.mu.Unlock()
	c.apply(fx)
	return id, nil
}

func (c *Client) unsubscribe(ch *ClientChannel, id ListenerID) error {
	fx := &effects{}
	c.mu.Lock()
	ch.mu.Lock()
	var removed bool
	ch.subscribers, removed = removeEntry(ch.subscribers, id)
	last := removed && len(ch.subscribers) == 0
	if last {
		ch.status = Unsubscribed
	}
	ch.mu.Unlock()

	if last && c.sm.IsConnected() {
		m, err := c.bayeux.unsubscribeRequest(c.clientID, ch.id)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.enqueueLocked(pendingMessage{message: m}, fx)
	}
	c.mu.Unlock()
	c.apply(fx)
	return nil
}
