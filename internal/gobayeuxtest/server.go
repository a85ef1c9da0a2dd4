package gobayeuxtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sigmavirus24/gobayeux/v3"
)

const (
	VERSION = "1.0"

	unknownClientError = "402::Unknown client"
)

type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

type session struct {
	id     string
	subs   map[gobayeux.Channel]struct{}
	queue  []gobayeux.Message
	notify chan struct{}
}

func newSession() *session {
	return &session{
		id:     uuid.NewString(),
		subs:   make(map[gobayeux.Channel]struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (s *session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) subscribed(channel gobayeux.Channel) bool {
	for sub := range s.subs {
		if sub.Match(channel) {
			return true
		}
	}
	return false
}

// Server is an in-process Bayeux server usable as the http.RoundTripper of
// a client. Connects are held until a message is queued for the session or
// the advised timeout elapses.
type Server struct {
	log Logger

	mu       sync.Mutex
	running  bool
	sessions map[string]*session
	received map[gobayeux.Channel][]gobayeux.Message

	failStatus int
	failCount  int

	handshakeError bool
	connectTimeout time.Duration
	interval       time.Duration
	onPublish      func(gobayeux.Message)
}

func NewServer(logger Logger, opts ...ServerOpts) *Server {
	server := &Server{
		log:            logger,
		sessions:       make(map[string]*session),
		received:       make(map[gobayeux.Channel][]gobayeux.Message),
		connectTimeout: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt.apply(server)
	}

	return server
}

func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true
}

// Stop makes every request fail as if the server could not be reached
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.wakeAllLocked()
}

// Restart drops every session, like a server restarted without persistence
func (s *Server) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wakeAllLocked()
	s.sessions = make(map[string]*session)
	s.running = true
}

// FailRequests answers the next count requests with statusCode
func (s *Server) FailRequests(statusCode, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failStatus = statusCode
	s.failCount = count
}

// Sessions returns the number of live sessions
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Received returns the messages the server received on channel
func (s *Server) Received(channel gobayeux.Channel) []gobayeux.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]gobayeux.Message(nil), s.received[channel]...)
}

func (s *Server) wakeAllLocked() {
	for _, sess := range s.sessions {
		sess.wake()
	}
}

func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	defer func() {
		if err := req.Body.Close(); err != nil {
			s.log.Logf("could not close test server request body: %+v", err)
		}
	}()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body (%w)", err)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("server not running (%w)", gobayeux.ErrServerUnavailable)
	}
	if s.failCount > 0 {
		s.failCount--
		status := s.failStatus
		s.mu.Unlock()
		return response(status, []byte(http.StatusText(status))), nil
	}

	var msgs []gobayeux.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		s.mu.Unlock()
		return response(http.StatusUnprocessableEntity, nil), nil
	}

	replies := []gobayeux.Message{}
	var connect *gobayeux.Message
	var connectSession *session

	for i := range msgs {
		msg := msgs[i]
		s.received[msg.Channel] = append(s.received[msg.Channel], msg)

		if msg.Channel == gobayeux.MetaHandshake {
			if s.handshakeError {
				s.mu.Unlock()
				// For error parsing tests, always return a 400 Bad Request for handshake
				return response(http.StatusBadRequest, []byte(`{"error":"Invalid request"}`)), nil
			}
			sess := newSession()
			s.sessions[sess.id] = sess
			replies = append(replies, gobayeux.Message{
				Channel:                  gobayeux.MetaHandshake,
				Version:                  VERSION,
				SupportedConnectionTypes: []string{gobayeux.ConnectionTypeLongPolling},
				ClientID:                 sess.id,
				Successful:               true,
				Advice:                   s.advice(gobayeux.ReconnectRetry),
				ID:                       msg.ID,
			})
			continue
		}

		sess, ok := s.sessions[msg.ClientID]
		if !ok {
			replies = append(replies, s.unknownClient(msg))
			continue
		}

		switch msg.Channel {
		case gobayeux.MetaConnect:
			connect, connectSession = &msgs[i], sess
		case gobayeux.MetaSubscribe:
			sess.subs[msg.Subscription] = struct{}{}
			replies = append(replies, gobayeux.Message{
				Channel:      gobayeux.MetaSubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			})
		case gobayeux.MetaUnsubscribe:
			reply := gobayeux.Message{
				Channel:      gobayeux.MetaUnsubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			if _, ok := sess.subs[msg.Subscription]; !ok {
				reply.Successful = false
				reply.Error = fmt.Sprintf("403:%s:not subscribed", msg.Subscription)
			}
			delete(sess.subs, msg.Subscription)
			replies = append(replies, reply)
		case gobayeux.MetaDisconnect:
			delete(s.sessions, msg.ClientID)
			sess.wake()
			replies = append(replies, gobayeux.Message{
				Channel:    gobayeux.MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			if msg.Channel.IsMeta() {
				s.log.Logf("unhandled: %+v", msg)
				continue
			}
			s.publishLocked(msg)
			replies = append(replies, gobayeux.Message{
				Channel:    msg.Channel,
				ID:         msg.ID,
				Successful: true,
			})
		}
	}
	s.mu.Unlock()

	if connect != nil {
		polled, err := s.poll(req, connect, connectSession)
		if err != nil {
			return nil, err
		}
		replies = append(replies, polled...)
	}

	reply, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("issue marshaling body (%w)", err)
	}

	return response(http.StatusOK, reply), nil
}

// poll holds a connect until the session has messages queued, the timeout
// elapses or the request is canceled
func (s *Server) poll(req *http.Request, connect *gobayeux.Message, sess *session) ([]gobayeux.Message, error) {
	s.mu.Lock()
	timeout := s.connectTimeout
	if connect.Advice != nil && connect.Advice.Timeout == 0 {
		timeout = 0
	}
	empty := len(sess.queue) == 0
	s.mu.Unlock()

	if empty && timeout > 0 {
		timer := time.NewTimer(timeout)
		select {
		case <-sess.notify:
		case <-timer.C:
		case <-req.Context().Done():
		}
		timer.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, fmt.Errorf("server stopped (%w)", gobayeux.ErrServerUnavailable)
	}
	if s.sessions[sess.id] != sess {
		return []gobayeux.Message{s.unknownClient(*connect)}, nil
	}
	replies := sess.queue
	sess.queue = nil
	return append(replies, gobayeux.Message{
		Channel:    gobayeux.MetaConnect,
		Successful: true,
		ClientID:   connect.ClientID,
		Advice:     s.advice(gobayeux.ReconnectRetry),
		ID:         connect.ID,
	}), nil
}

func (s *Server) publishLocked(msg gobayeux.Message) {
	if s.onPublish != nil {
		s.onPublish(msg)
	}
	for _, sess := range s.sessions {
		if !sess.subscribed(msg.Channel) {
			continue
		}
		sess.queue = append(sess.queue, gobayeux.Message{
			Channel: msg.Channel,
			ID:      msg.ID,
			Data:    msg.Data,
		})
		sess.wake()
	}
}

func (s *Server) advice(reconnect string) *gobayeux.Advice {
	return &gobayeux.Advice{
		Reconnect: reconnect,
		Timeout:   int(s.connectTimeout / time.Millisecond),
		Interval:  int(s.interval / time.Millisecond),
	}
}

func (s *Server) unknownClient(msg gobayeux.Message) gobayeux.Message {
	return gobayeux.Message{
		Channel:      msg.Channel,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Subscription: msg.Subscription,
		Successful:   false,
		Error:        unknownClientError,
		Advice:       &gobayeux.Advice{Reconnect: gobayeux.ReconnectHandshake},
	}
}

func response(statusCode int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
