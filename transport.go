package gobayeux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Transport carries batches of messages to the Bayeux server
type Transport interface {
	// Name is the connection type announced during the handshake
	Name() string
	// Send starts the exchange and returns immediately. The transport must
	// resolve the exchange exactly once and stop using the underlying
	// connection when the exchange context is canceled.
	Send(ex *Exchange)
}

const maxErrorBodySize = 4096

// LongPollingTransport sends every exchange as an HTTP POST with a JSON body
//
// See also: https://docs.cometd.org/current/reference/#_transports_long_polling
type LongPollingTransport struct {
	client        *http.Client
	serverAddress *url.URL
}

// NewLongPollingTransport creates a transport posting to serverAddress. A
// nil client is replaced by one using roundTripper (or
// http.DefaultTransport) and jar.
func NewLongPollingTransport(serverAddress string, client *http.Client, roundTripper http.RoundTripper, jar http.CookieJar) (*LongPollingTransport, error) {
	parsedAddress, err := url.Parse(serverAddress)
	if err != nil {
		return nil, err
	}
	if client == nil {
		if roundTripper == nil {
			roundTripper = http.DefaultTransport
		}
		client = &http.Client{Transport: roundTripper, Jar: jar}
	}
	return &LongPollingTransport{client: client, serverAddress: parsedAddress}, nil
}

// Name implements Transport
func (t *LongPollingTransport) Name() string {
	return ConnectionTypeLongPolling
}

// Send implements Transport
func (t *LongPollingTransport) Send(ex *Exchange) {
	go func() {
		response, err := t.exchange(ex.Context(), ex.Messages())
		ex.Resolve(response, err)
	}()
}

func (t *LongPollingTransport) exchange(ctx context.Context, ms []Message) ([]Message, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ms); err != nil {
		return nil, &ProtocolError{Reason: "unable to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverAddress.String(), &buf)
	if err != nil {
		return nil, &TransportError{Kind: FailureConnect, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	return parseResponse(ctx, resp)
}

func parseResponse(ctx context.Context, resp *http.Response) ([]Message, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &ProtocolError{
			Reason: "unexpected status code",
			Err:    BadResponseError{resp.StatusCode, resp.Status, body},
		}
	}

	messages := make([]Message, 0)
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		if ctx.Err() != nil {
			return nil, classifyRequestError(ctx, err)
		}
		return nil, &ProtocolError{Reason: "unable to decode response", Err: err}
	}
	return messages, nil
}

// classifyRequestError maps errors from http.Client.Do onto the failure
// taxonomy: dial errors are connect failures, deadlines are expiries and
// everything else is an exception.
func classifyRequestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrExchangeCanceled
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: FailureExpired, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: FailureExpired, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &TransportError{Kind: FailureConnect, Err: err}
	}
	if errors.Is(err, ErrServerUnavailable) {
		return &TransportError{Kind: FailureConnect, Err: err}
	}
	return &TransportError{Kind: FailureException, Err: err}
}

// ErrServerUnavailable may be returned by http.RoundTripper implementations
// that know the server cannot be reached; it is classified as a connect
// failure.
var ErrServerUnavailable = errors.New("bayeux server unavailable")

func exchangeTimeout(advice Advice, maxNetworkDelay time.Duration, channel Channel) time.Duration {
	if channel == MetaConnect {
		return advice.TimeoutAsDuration() + maxNetworkDelay
	}
	return maxNetworkDelay
}
