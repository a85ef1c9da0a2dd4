package gobayeux

import (
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultMaxNetworkDelay bounds how long a non-connect exchange may take,
	// and is added to the advised timeout for connect exchanges
	DefaultMaxNetworkDelay = 10 * time.Second
	// DefaultVersion is the Bayeux protocol version sent in the handshake
	DefaultVersion = "1.0"
)

// Hooks are called once per failed exchange on the goroutine that delivered
// the failure. They never change the retry behaviour of the client. Nil
// hooks are skipped.
type Hooks struct {
	// OnConnectException is called when the server could not be reached
	OnConnectException func(error)
	// OnException is called for I/O errors after the connection was made
	OnException func(error)
	// OnProtocolError is called when the server response violates the
	// protocol
	OnProtocolError func(error)
	// OnExpire is called when no response arrived in time
	OnExpire func(error)
}

func (h Hooks) fire(err error) {
	var te *TransportError
	var pe *ProtocolError
	switch {
	case errors.As(err, &te):
		switch te.Kind {
		case FailureConnect:
			call(h.OnConnectException, err)
		case FailureExpired:
			call(h.OnExpire, err)
		default:
			call(h.OnException, err)
		}
	case errors.As(err, &pe):
		call(h.OnProtocolError, err)
	}
}

func call(hook func(error), err error) {
	if hook != nil {
		hook(err)
	}
}

// failureKind labels err for metrics and logs
func failureKind(err error) string {
	var te *TransportError
	var pe *ProtocolError
	switch {
	case errors.As(err, &te):
		return te.Kind.String()
	case errors.As(err, &pe):
		return "protocol"
	default:
		return "other"
	}
}

// Options stores the configuration of a Client
type Options struct {
	Logger          Logger
	Client          *http.Client
	Transport       http.RoundTripper
	BayeuxTransport Transport
	Hooks           Hooks
	Metrics         *Metrics
	// BackoffIncrement is added to the retry delay for every consecutive
	// failure
	BackoffIncrement time.Duration
	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration
	// MaxNetworkDelay is the time allowed for a response on top of the
	// advised connect timeout
	MaxNetworkDelay time.Duration
	// RetryFilter decides whether a failed handshake or connect is
	// retried. The default retries everything.
	RetryFilter func(error) bool
	// SessionUnknown reports whether an unsuccessful reply means the server
	// no longer knows the session
	SessionUnknown func(Message) bool
	Extensions     []MessageExtender
	Version        string
}

// Option is a function that configures a Client
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Logger:           newDiscardLogger(),
		BackoffIncrement: DefaultBackoffIncrement,
		MaxBackoff:       DefaultMaxBackoff,
		MaxNetworkDelay:  DefaultMaxNetworkDelay,
		RetryFilter:      func(error) bool { return true },
		SessionUnknown:   IsSessionUnknown,
		Version:          DefaultVersion,
	}
}

// IsSessionUnknown is the default SessionUnknown predicate: an unsuccessful
// reply either advising a new handshake or carrying the 402 error code.
func IsSessionUnknown(m Message) bool {
	if m.Successful {
		return false
	}
	if m.Advice != nil && m.Advice.ShouldHandshake() {
		return true
	}
	parsed, err := m.ParseError()
	return err == nil && parsed.ErrorCode == ErrorCodeUnknownClient
}

// WithHTTPTransport sets the http.RoundTripper of the default long-polling
// transport
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(options *Options) {
		options.Transport = transport
	}
}

// WithHTTPClient sets the *http.Client of the default long-polling
// transport. A client without a Jar gets the client's CookieStore.
func WithHTTPClient(client *http.Client) Option {
	return func(options *Options) {
		options.Client = client
	}
}

// WithTransport replaces the long-polling transport
func WithTransport(transport Transport) Option {
	return func(options *Options) {
		options.BayeuxTransport = transport
	}
}

// WithHooks sets the failure hooks
func WithHooks(hooks Hooks) Option {
	return func(options *Options) {
		options.Hooks = hooks
	}
}

// WithMetrics records the client's activity in metrics
func WithMetrics(metrics *Metrics) Option {
	return func(options *Options) {
		options.Metrics = metrics
	}
}

// WithBackoff sets the backoff increment and the maximum retry delay
func WithBackoff(increment, maxInterval time.Duration) Option {
	return func(options *Options) {
		options.BackoffIncrement = increment
		options.MaxBackoff = maxInterval
	}
}

// WithMaxNetworkDelay sets the time allowed for a response on top of the
// advised timeout
func WithMaxNetworkDelay(delay time.Duration) Option {
	return func(options *Options) {
		options.MaxNetworkDelay = delay
	}
}

// WithRetryFilter decides which handshake and connect failures are retried.
// Returning false stops the client and moves it to Disconnected.
func WithRetryFilter(filter func(error) bool) Option {
	return func(options *Options) {
		options.RetryFilter = filter
	}
}

// WithSessionUnknownFunc replaces IsSessionUnknown for servers that signal a
// lost session differently
func WithSessionUnknownFunc(fn func(Message) bool) Option {
	return func(options *Options) {
		options.SessionUnknown = fn
	}
}

// WithExtension registers a MessageExtender when the client is created
func WithExtension(ext MessageExtender) Option {
	return func(options *Options) {
		options.Extensions = append(options.Extensions, ext)
	}
}
