package gobayeux

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// BayeuxClient is the protocol layer of a Client. It builds requests, numbers
// the messages, runs the registered extensions and hands exchanges to the
// Transport. It keeps no session state of its own.
type BayeuxClient struct {
	transport Transport
	logger    Logger
	metrics   *Metrics

	extLock sync.RWMutex
	exts    []MessageExtender

	ids uint64
}

// NewBayeuxClient initializes a BayeuxClient on top of the given transport
func NewBayeuxClient(transport Transport, logger Logger, metrics *Metrics) *BayeuxClient {
	if logger == nil {
		logger = newDiscardLogger()
	}
	return &BayeuxClient{transport: transport, logger: logger, metrics: metrics}
}

// ConnectionType is the connection type of the underlying transport
func (b *BayeuxClient) ConnectionType() string {
	return b.transport.Name()
}

func (b *BayeuxClient) nextMessageID() string {
	return strconv.FormatUint(atomic.AddUint64(&b.ids, 1), 10)
}

// NewExchange prepares an exchange for ms. Messages without an id get one,
// outgoing extensions run immediately and incoming extensions run on the
// response before callback. The exchange expires after timeout.
func (b *BayeuxClient) NewExchange(ctx context.Context, ms []Message, timeout time.Duration, callback func([]Message, error)) *Exchange {
	for i := range ms {
		if ms[i].ID == "" {
			ms[i].ID = b.nextMessageID()
		}
	}
	exts := b.extensions()
	for _, ext := range exts {
		for i := range ms {
			ext.Outgoing(&ms[i])
		}
	}

	start := time.Now()
	ex := NewExchange(ctx, ms, func(ex *Exchange) {
		response, err := ex.response, ex.err
		b.metrics.exchangeCompleted(ms[0].Channel, err == nil, time.Since(start))
		for _, ext := range exts {
			for i := range response {
				ext.Incoming(&response[i])
			}
		}
		if callback != nil {
			callback(response, err)
		}
	})
	if timeout > 0 {
		ex.ExpireAfter(timeout, &TransportError{Kind: FailureExpired, Err: context.DeadlineExceeded})
	}
	return ex
}

// Send hands the exchange to the transport
func (b *BayeuxClient) Send(ex *Exchange) {
	b.transport.Send(ex)
}

// Request sends ms and blocks until the exchange resolves or ctx is done
func (b *BayeuxClient) Request(ctx context.Context, ms []Message, timeout time.Duration) ([]Message, error) {
	ex := b.NewExchange(ctx, ms, timeout, nil)
	b.Send(ex)
	select {
	case <-ex.Done():
	case <-ctx.Done():
		ex.Cancel()
	}
	return ex.Result()
}

// Disconnect sends a /meta/disconnect request to the Bayeux server to
// terminate the session
func (b *BayeuxClient) Disconnect(ctx context.Context, clientID string, timeout time.Duration) ([]Message, error) {
	logger := b.logger.WithField("at", "disconnect")
	start := time.Now()
	logger.Debug("starting")

	builder := NewDisconnectRequestBuilder()
	builder.AddClientID(clientID)
	ms, err := builder.Build()
	if err != nil {
		return nil, DisconnectFailedError{err}
	}

	response, err := b.Request(ctx, ms, timeout)
	if err != nil {
		logger.WithError(err).Debug("error during request")
		return nil, DisconnectFailedError{err}
	}

	reply, ok := findReply(response, ms[0])
	if !ok {
		return response, DisconnectFailedError{&ProtocolError{Reason: "disconnect reply missing", Err: ErrMissingReply}}
	}
	if !reply.Successful {
		return response, DisconnectFailedError{newApplicationError(reply)}
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing")
	return response, nil
}

// UseExtension adds the provided MessageExtender to the list of known
// extensions
func (b *BayeuxClient) UseExtension(ext MessageExtender) error {
	b.extLock.Lock()
	for _, registered := range b.exts {
		if ext == registered {
			b.extLock.Unlock()
			return AlreadyRegisteredError{ext}
		}
	}
	b.exts = append(b.exts, ext)
	b.extLock.Unlock()

	ext.Registered(extensionName(ext), b)
	return nil
}

// RemoveExtension unregisters ext and reports whether it was registered
func (b *BayeuxClient) RemoveExtension(ext MessageExtender) bool {
	b.extLock.Lock()
	removed := false
	for i, registered := range b.exts {
		if ext == registered {
			b.exts = append(b.exts[:i:i], b.exts[i+1:]...)
			removed = true
			break
		}
	}
	b.extLock.Unlock()

	if removed {
		ext.Unregistered()
	}
	return removed
}

func (b *BayeuxClient) extensions() []MessageExtender {
	b.extLock.RLock()
	defer b.extLock.RUnlock()
	return append([]MessageExtender(nil), b.exts...)
}

func (b *BayeuxClient) handshakeRequest(version string, ext map[string]interface{}) ([]Message, error) {
	builder := NewHandshakeRequestBuilder()
	if err := builder.AddVersion(version); err != nil {
		return nil, &HandshakeFailedError{err}
	}
	if err := builder.AddSupportedConnectionType(b.ConnectionType()); err != nil {
		return nil, &HandshakeFailedError{err}
	}
	builder.AddExt(ext)
	ms, err := builder.Build()
	if err != nil {
		return nil, &HandshakeFailedError{err}
	}
	return ms, nil
}

// connectRequest builds the next /meta/connect. The first connect of a
// session asks the server not to hold the request.
func (b *BayeuxClient) connectRequest(clientID string, first bool) ([]Message, error) {
	builder := NewConnectRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddConnectionType(b.ConnectionType()); err != nil {
		return nil, ConnectionFailedError{err}
	}
	if first {
		builder.AddAdvice(Advice{Timeout: 0})
	}
	ms, err := builder.Build()
	if err != nil {
		return nil, ConnectionFailedError{err}
	}
	return ms, nil
}

func (b *BayeuxClient) subscribeRequest(clientID string, subscription Channel) (Message, error) {
	builder := NewSubscribeRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddSubscription(subscription); err != nil {
		return Message{}, SubscriptionFailedError{[]Channel{subscription}, err}
	}
	ms, err := builder.Build()
	if err != nil {
		return Message{}, SubscriptionFailedError{[]Channel{subscription}, err}
	}
	return ms[0], nil
}

func (b *BayeuxClient) unsubscribeRequest(clientID string, subscription Channel) (Message, error) {
	builder := NewUnsubscribeRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddSubscription(subscription); err != nil {
		return Message{}, UnsubscribeFailedError{[]Channel{subscription}, err}
	}
	ms, err := builder.Build()
	if err != nil {
		return Message{}, UnsubscribeFailedError{[]Channel{subscription}, err}
	}
	return ms[0], nil
}

func (b *BayeuxClient) publishRequest(channel Channel, data interface{}) (Message, error) {
	builder := NewPublishRequestBuilder()
	if err := builder.AddChannel(channel); err != nil {
		return Message{}, err
	}
	if err := builder.AddData(data); err != nil {
		return Message{}, err
	}
	ms, err := builder.Build()
	if err != nil {
		return Message{}, err
	}
	return ms[0], nil
}

// findReply returns the message of response answering request. Replies are
// correlated by id, falling back to the first message on the same channel.
func findReply(response []Message, request Message) (Message, bool) {
	for _, m := range response {
		if m.Channel == request.Channel && request.ID != "" && m.ID == request.ID {
			return m, true
		}
	}
	for _, m := range response {
		if m.Channel != request.Channel || m.ID != "" && request.ID != "" && m.ID != request.ID {
			continue
		}
		if request.Channel.IsMeta() || !m.HasData() {
			return m, true
		}
	}
	return Message{}, false
}

// failureMessage is the unsuccessful message listeners receive when request
// could not be answered by the server
func failureMessage(request Message, err error) Message {
	return Message{
		Channel:      request.Channel,
		ID:           request.ID,
		ClientID:     request.ClientID,
		Subscription: request.Subscription,
		Successful:   false,
		Error:        err.Error(),
	}
}
