package gobayeuxtest

import (
	"time"

	"github.com/sigmavirus24/gobayeux/v3"
)

type ServerOpts interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (opt serverOptFn) apply(s *Server) {
	opt(s)
}

func WithHandshakeError(handshakeError bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.handshakeError = handshakeError
	})
}

// WithConnectTimeout sets how long connects are held and the advised timeout
func WithConnectTimeout(timeout time.Duration) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.connectTimeout = timeout
	})
}

// WithInterval sets the advised interval between two connects
func WithInterval(interval time.Duration) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.interval = interval
	})
}

// WithPublishObserver calls fn with every published message while the
// server lock is held
func WithPublishObserver(fn func(gobayeux.Message)) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.onPublish = fn
	})
}
