package gobayeux

import (
	"encoding/json"
	"strconv"
	"strings"
)

func validConnectionType(connectionType string) bool {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame:
		return true
	}
	return false
}

func validVersion(version string) error {
	if len(version) < 1 {
		return BadConnectionVersionError{version}
	}
	pieces := strings.SplitN(version, ".", 2)
	if _, err := strconv.Atoi(pieces[0]); err != nil {
		return BadConnectionVersionError{version}
	}
	return nil
}

func copyExt(ext map[string]interface{}) map[string]interface{} {
	if len(ext) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(ext))
	for k, v := range ext {
		out[k] = v
	}
	return out
}

// HandshakeRequestBuilder provides a way to safely and confidently create
// handshake requests to /meta/handshake.
//
// See also: https://docs.cometd.org/current/reference/#_handshake_request
type HandshakeRequestBuilder struct {
	// Required fields
	version                  string
	supportedConnectionTypes []string
	// Optional fields
	minimumVersion string
	id             string
	ext            map[string]interface{}
}

// NewHandshakeRequestBuilder provides an easy way to build a Message that can
// be sent as a Handshake Request as documented in
// https://docs.cometd.org/current/reference/#_handshake_request
func NewHandshakeRequestBuilder() *HandshakeRequestBuilder {
	return &HandshakeRequestBuilder{
		supportedConnectionTypes: make([]string, 0),
	}
}

// AddSupportedConnectionType accepts a string and will add it to the list of
// supported connection types for the /meta/handshake request. It validates
// the connection type. You're encouraged to use one of the constants created
// for these different connection types.
// This will de-duplicate connection types and returns an error if an invalid
// connection type was provided.
func (b *HandshakeRequestBuilder) AddSupportedConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	for _, ct := range b.supportedConnectionTypes {
		if ct == connectionType {
			return nil
		}
	}
	b.supportedConnectionTypes = append(b.supportedConnectionTypes, connectionType)
	return nil
}

// AddVersion accepts the version of the Bayeux protocol that the client
// supports.
func (b *HandshakeRequestBuilder) AddVersion(version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	b.version = version
	return nil
}

// AddMinimumVersion adds the minimum supported version
func (b *HandshakeRequestBuilder) AddMinimumVersion(version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	b.minimumVersion = version
	return nil
}

// AddID sets the message id used to correlate the handshake response
func (b *HandshakeRequestBuilder) AddID(id string) {
	b.id = id
}

// AddExt merges the provided values into the ext field of the request
func (b *HandshakeRequestBuilder) AddExt(ext map[string]interface{}) {
	if b.ext == nil {
		b.ext = make(map[string]interface{}, len(ext))
	}
	for k, v := range ext {
		b.ext[k] = v
	}
}

// Build generates the final Message to be sent as a Handshake Request
func (b *HandshakeRequestBuilder) Build() ([]Message, error) {
	if len(b.supportedConnectionTypes) < 1 {
		return nil, ErrNoSupportedConnectionTypes
	}
	if len(b.version) == 0 {
		return nil, ErrNoVersion
	}
	m := Message{
		Channel:                  MetaHandshake,
		Version:                  b.version,
		SupportedConnectionTypes: b.supportedConnectionTypes,
		ID:                       b.id,
		Ext:                      copyExt(b.ext),
	}
	if len(b.minimumVersion) > 0 {
		m.MinimumVersion = b.minimumVersion
	}
	return []Message{m}, nil
}

// ConnectRequestBuilder provides a way to safely build a Message that can be
// sent as a /meta/connect request as documented in
// https://docs.cometd.org/current/reference/#_connect_request
type ConnectRequestBuilder struct {
	clientID       string
	connectionType string
	id             string
	advice         *Advice
}

// NewConnectRequestBuilder initializes a ConnectRequestBuilder as an easy way
// to build a Message that can be sent as a /meta/connect request.
//
// See also: https://docs.cometd.org/current/reference/#_connect_request
func NewConnectRequestBuilder() *ConnectRequestBuilder {
	return &ConnectRequestBuilder{}
}

// AddClientID adds the previously provided clientId to the request
func (b *ConnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddConnectionType adds the connection type used by the client for the
// purposes of this connection to the request
func (b *ConnectRequestBuilder) AddConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	b.connectionType = connectionType
	return nil
}

// AddID sets the message id used to correlate the connect response
func (b *ConnectRequestBuilder) AddID(id string) {
	b.id = id
}

// AddAdvice attaches client advice to the request. Clients send
// `{"timeout": 0}` on the first connect of a session so that the server
// replies without holding the request.
func (b *ConnectRequestBuilder) AddAdvice(advice Advice) {
	b.advice = &advice
}

// Build generates the final Message to be sent as a Connect Request
func (b *ConnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	if b.connectionType == "" {
		return nil, ErrMissingConnectionType
	}

	m := Message{
		Channel:        MetaConnect,
		ClientID:       b.clientID,
		ConnectionType: b.connectionType,
		ID:             b.id,
		Advice:         b.advice,
	}
	return []Message{m}, nil
}

// SubscribeRequestBuilder provides an easy way to build a /meta/subscribe
// request as described in
// https://docs.cometd.org/current/reference/#_subscribe_request
type SubscribeRequestBuilder struct {
	clientID     string
	subscription []Channel
	ext          map[string]interface{}
}

// NewSubscribeRequestBuilder initializes a SubscribeRequestBuilder as an easy
// way to build a Message that can be sent as a /meta/subscribe request. See
// also https://docs.cometd.org/current/reference/#_subscribe_request
func NewSubscribeRequestBuilder() *SubscribeRequestBuilder {
	return &SubscribeRequestBuilder{subscription: make([]Channel, 0)}
}

// AddClientID adds the previously provided clientId to the request
func (b *SubscribeRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddSubscription adds a given channel to the list of subscriptions being
// sent in a /meta/subscribe request
func (b *SubscribeRequestBuilder) AddSubscription(c Channel) error {
	if !c.IsValid() {
		return InvalidChannelError{c}
	}
	if c.IsMeta() {
		return ErrCannotSubscribeMeta
	}

	for _, s := range b.subscription {
		if s == c {
			return nil
		}
	}
	b.subscription = append(b.subscription, c)
	return nil
}

// AddExt sets ext values copied onto every generated message
func (b *SubscribeRequestBuilder) AddExt(ext map[string]interface{}) {
	b.ext = copyExt(ext)
}

// Build generates the final Message to be sent as a Subscribe Request
func (b *SubscribeRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	if len(b.subscription) < 1 {
		return nil, EmptySliceError("subscriptions")
	}

	ms := make([]Message, len(b.subscription))

	for i := range b.subscription {
		ms[i] = Message{
			Channel:      MetaSubscribe,
			ClientID:     b.clientID,
			Subscription: b.subscription[i],
			Ext:          copyExt(b.ext),
		}
	}
	return ms, nil
}

// UnsubscribeRequestBuilder provides an easy way to build a /meta/unsubscribe
// request as described in
// https://docs.cometd.org/current/reference/#_unsubscribe_request
type UnsubscribeRequestBuilder struct {
	clientID     string
	subscription []Channel
}

// NewUnsubscribeRequestBuilder initializes an UnsubscribeRequestBuilder as an
// easy way to build a Message that can be sent as a /meta/unsubscribe
// request. See also
// https://docs.cometd.org/current/reference/#_unsubscribe_request
func NewUnsubscribeRequestBuilder() *UnsubscribeRequestBuilder {
	return &UnsubscribeRequestBuilder{subscription: make([]Channel, 0)}
}

// AddClientID adds the previously provided clientId to the request
func (b *UnsubscribeRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddSubscription adds a given channel to the list of subscriptions being
// sent in a /meta/unsubscribe request
func (b *UnsubscribeRequestBuilder) AddSubscription(c Channel) error {
	if !c.IsValid() {
		return InvalidChannelError{c}
	}

	for _, s := range b.subscription {
		if s == c {
			return nil
		}
	}
	b.subscription = append(b.subscription, c)
	return nil
}

// Build generates the final Message to be sent as a Unsubscribe Request
func (b *UnsubscribeRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	if len(b.subscription) < 1 {
		return nil, EmptySliceError("subscriptions")
	}

	ms := make([]Message, len(b.subscription))

	for i := range b.subscription {
		ms[i] = Message{
			Channel:      MetaUnsubscribe,
			ClientID:     b.clientID,
			Subscription: b.subscription[i],
		}
	}
	return ms, nil
}

// DisconnectRequestBuilder provides an easy way to build a /meta/disconnect
// request as described in
// https://docs.cometd.org/current/reference/#_bayeux_meta_disconnect
type DisconnectRequestBuilder struct {
	clientID string
}

// NewDisconnectRequestBuilder initializes a DisconnectRequestBuilder as an
// easy way to build a Message that can be sent as a /meta/disconnect request.
func NewDisconnectRequestBuilder() *DisconnectRequestBuilder {
	return &DisconnectRequestBuilder{}
}

// AddClientID adds the previously provided clientId to the request
func (b *DisconnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// Build generates the final Message to be sent as a Disconnect Request
func (b *DisconnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	return []Message{{Channel: MetaDisconnect, ClientID: b.clientID}}, nil
}

// PublishRequestBuilder builds a message published to an application
// channel.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_event_message
type PublishRequestBuilder struct {
	channel  Channel
	clientID string
	id       string
	data     json.RawMessage
	ext      map[string]interface{}
}

// NewPublishRequestBuilder initializes a PublishRequestBuilder
func NewPublishRequestBuilder() *PublishRequestBuilder {
	return &PublishRequestBuilder{}
}

// AddChannel sets the channel the message is published to. Meta channels
// and wildcard patterns are rejected.
func (b *PublishRequestBuilder) AddChannel(c Channel) error {
	if !c.IsValid() || c.HasWildcard() {
		return InvalidChannelError{c}
	}
	if c.IsMeta() {
		return InvalidChannelError{c}
	}
	b.channel = c
	return nil
}

// AddClientID adds the previously provided clientId to the request
func (b *PublishRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddID sets the message id used to correlate the publish reply
func (b *PublishRequestBuilder) AddID(id string) {
	b.id = id
}

// AddData encodes data as the JSON payload of the message. A
// json.RawMessage is used as is.
func (b *PublishRequestBuilder) AddData(data interface{}) error {
	if raw, ok := data.(json.RawMessage); ok {
		b.data = raw
		return nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.data = encoded
	return nil
}

// AddExt sets the ext field of the message
func (b *PublishRequestBuilder) AddExt(ext map[string]interface{}) {
	b.ext = copyExt(ext)
}

// Build generates the final Message to be published. The clientId is
// optional here because messages published during a handshake are queued
// and stamped with the clientId once it is known.
func (b *PublishRequestBuilder) Build() ([]Message, error) {
	if b.channel == emptyChannel {
		return nil, InvalidChannelError{b.channel}
	}
	if b.data == nil {
		return nil, ErrNoData
	}
	return []Message{{
		Channel:  b.channel,
		ClientID: b.clientID,
		ID:       b.id,
		Data:     b.data,
		Ext:      b.ext,
	}}, nil
}
