package gobayeux

import (
	"fmt"
)

const (
	// ErrClientNotConnected is returned when the client is not connected.
	// Publishing while disconnected always fails with this error.
	ErrClientNotConnected = sentinel("client not connected to server")

	// ErrTooManyMessages is returned when there is more than one handshake message
	ErrTooManyMessages = sentinel("more messages than expected in handshake response")

	// ErrBadChannel is returned when the handshake response is on the wrong channel
	ErrBadChannel = sentinel("handshake responses must come back via the /meta/handshake channel")

	// ErrFailedToConnect is a general connection error
	ErrFailedToConnect = sentinel("connect request was not successful")

	// ErrNoSupportedConnectionTypes is returned when the client and server
	// aren't able to agree on a connection type
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned when a version is not provided
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when the client id has not been set
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned when the connection type is unset
	ErrMissingConnectionType = sentinel("missing connectionType value")

	// ErrExchangeCanceled resolves an exchange that was abandoned before the
	// server replied
	ErrExchangeCanceled = sentinel("exchange canceled")

	// ErrMissingReply is returned when a response batch lacks the reply to
	// the request that was sent
	ErrMissingReply = sentinel("response did not contain a reply for the request")

	// ErrCannotSubscribeMeta is returned when subscribing to a /meta/ channel.
	// Use AddListener to observe meta channels.
	ErrCannotSubscribeMeta = sentinel("meta channels cannot be subscribed to")

	// ErrNoData is returned when a message is expected to carry data but
	// does not
	ErrNoData = sentinel("message has no data")
)

type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

// FailureKind classifies a transport level failure
type FailureKind int

const (
	// FailureConnect means the server could not be reached at all
	FailureConnect FailureKind = iota
	// FailureException covers I/O errors after the connection was
	// established
	FailureException
	// FailureExpired means no response arrived within the allowed window
	FailureExpired
)

func (k FailureKind) String() string {
	switch k {
	case FailureConnect:
		return "connect"
	case FailureException:
		return "exception"
	case FailureExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TransportError is returned when an exchange fails because of the network:
// the connection was refused, an I/O error happened or the exchange expired.
// These failures are always retried for handshakes and connects.
type TransportError struct {
	Kind FailureKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failure (%s)", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the server response violates the Bayeux
// protocol: unexpected status codes, undecodable bodies or missing replies.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s (%s)", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// SessionExpiredError signals that the server no longer recognises the
// clientId. The client handshakes again on its own.
type SessionExpiredError struct {
	ClientID string
	Reply    Message
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %q is unknown to the server: %s", e.ClientID, e.Reply.Error)
}

// ApplicationError is an unsuccessful reply that carries no actionable
// advice. It is handed to listeners and callbacks and never retried.
type ApplicationError struct {
	Channel      Channel
	ErrorMessage string
	Reply        Message
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("request on %s was not successful: %s", e.Channel, e.ErrorMessage)
}

func newApplicationError(reply Message) *ApplicationError {
	return &ApplicationError{Channel: reply.Channel, ErrorMessage: reply.Error, Reply: reply}
}

// ConnectionFailedError is returned whenever Connect is called and it fails
type ConnectionFailedError struct {
	Err error
}

func (e ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed (%s)", e.Err)
}

func (e ConnectionFailedError) Unwrap() error {
	return e.Err
}

// HandshakeFailedError is returned whenever the handshake fails
type HandshakeFailedError struct {
	Err error
}

func (e *HandshakeFailedError) Error() string {
	return e.Err.Error()
}

func (e *HandshakeFailedError) Unwrap() error {
	return e.Err
}

func newHandshakeError(msg string) *HandshakeFailedError {
	return &HandshakeFailedError{
		fmt.Errorf("handshake was not successful: %s", msg),
	}
}

// SubscriptionFailedError is returned for any errors on Subscribe
type SubscriptionFailedError struct {
	Channels []Channel
	Err      error
}

func (e SubscriptionFailedError) Error() string {
	return fmt.Sprintf("subscription failed (%s)", e.Err)
}

func (e SubscriptionFailedError) Unwrap() error {
	return e.Err
}

// UnsubscribeFailedError is returned for any errors on Unsubscribe
type UnsubscribeFailedError struct {
	Channels []Channel
	Err      error
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unsubscribe failed (%s)", e.Err)
}

func (e UnsubscribeFailedError) Unwrap() error {
	return e.Err
}

// ActionFailedError is a general purpose error returned by the BayeuxClient
type ActionFailedError struct {
	Action       string
	ErrorMessage string
}

func (e ActionFailedError) Error() string {
	return fmt.Sprintf("unable to %s channels: %s", e.Action, e.ErrorMessage)
}

func newSubscribeError(msg string) *ActionFailedError {
	return &ActionFailedError{"subscribe to", msg}
}

func newUnsubscribeError(msg string) *ActionFailedError {
	return &ActionFailedError{"unsubscribe from", msg}
}

// DisconnectFailedError is returned when the call to Disconnect fails
type DisconnectFailedError struct {
	Err error
}

func (e DisconnectFailedError) Error() string {
	msg := "unable to disconnect from Bayeux server"

	if e.Err == nil {
		return msg
	}

	return fmt.Sprintf("%s (%s)", msg, e.Err)
}

func (e DisconnectFailedError) Unwrap() error {
	return e.Err
}

// AlreadyRegisteredError signifies that the given MessageExtender is already
// registered with the client
type AlreadyRegisteredError struct {
	MessageExtender
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension already registered: %T", e.MessageExtender)
}

// BadResponseError is returned when we get an unexpected HTTP response from the server
type BadResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e BadResponseError) Error() string {
	return fmt.Sprintf(
		"expected 200 response from bayeux server, got %d with status '%s' and body '%s'",
		e.StatusCode,
		e.Status,
		e.Body,
	)
}

// BadConnectionTypeError is returned when we don't know how to handle the
// requested connection type
type BadConnectionTypeError struct {
	ConnectionType string
}

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("%q is not a valid connection type", e.ConnectionType)
}

// BadConnectionVersionError is returned when we can't support the requested
// version number
type BadConnectionVersionError struct {
	Version string
}

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("version %q is invalid for Bayeux protocol", e.Version)
}

// InvalidChannelError is the result of a failure to validate a channel name
type InvalidChannelError struct {
	Channel
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %q appears to not be a valid channel", e.Channel)
}

// EmptySliceError is returned when an empty slice is unexpected
type EmptySliceError string

func (e EmptySliceError) Error() string {
	return fmt.Sprintf("no %s provided", string(e))
}

// ErrMessageUnparsable is returned when we fail to parse a message
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return fmt.Sprintf("error message not parseable: %s", string(e))
}

// BadStateError is returned when the state machine transition is not valid
type BadStateError struct {
	CurrentState State
	Event        Event
	Message      string
}

func (e BadStateError) Error() string {
	return fmt.Sprintf("%s, (current: %s, event: %s)", e.Message, e.CurrentState, e.Event)
}

// BadHandshakeError is returned when trying to handshake but not disconnected
type BadHandshakeError struct {
	*BadStateError
}

func newBadHandshake(current State) *BadHandshakeError {
	return &BadHandshakeError{
		&BadStateError{
			Message:      "attempting to handshake but not in disconnected state",
			CurrentState: current,
			Event:        handshakeSent,
		},
	}
}

func newBadTransition(current State, e Event) *BadStateError {
	return &BadStateError{
		Message:      "invalid transition for current state",
		CurrentState: current,
		Event:        e,
	}
}

// UnknownEventTypeError is returned when the next state is unknown
type UnknownEventTypeError struct {
	Event
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type (%q)", e.Event)
}
