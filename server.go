package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// Server accepts raw stream connections, upgrades them to WebSocket and
// reports their messages to a Handler.
//
// Every Server owns its Registry. Connections of one Server are never
// visible to another.
type Server struct {
	handler Handler
	opts    *Options
	reg     *Registry
	log     *logrus.Entry
	metrics *Metrics
	limiter *rate.Limiter

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	// conns holds every accepted connection, including those still
	// in the handshake, so Close can reach them.
	conns map[*Conn]struct{}
}

// NewServer returns a Server delivering events to h.
// opts may be nil.
func NewServer(h Handler, opts *Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		handler:   h,
		opts:      opts,
		reg:       NewRegistry(),
		log:       opts.Logger,
		metrics:   opts.Metrics,
		limiter:   opts.acceptLimiter(),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*Conn]struct{}),
	}
}

// Registry returns the registry of open connections.
func (s *Server) Registry() *Registry {
	return s.reg
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	return s.reg.Len()
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and serves each on its own goroutine.
// It returns when ctx is done, ln fails permanently or Shutdown is called,
// in which case the error is ErrServerClosed. ln is always closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	if !s.trackListener(ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.WithField("addr", ln.Addr().String()).Info("accepting websocket connections")

	var tempDelay time.Duration
	for {
		if s.limiter != nil {
			err := s.limiter.Wait(ctx)
			if err != nil {
				return s.serveErr(ctx, err)
			}
		}

		nc, err := ln.Accept()
		if err != nil {
			if s.isClosing() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return s.serveErr(ctx, err)
			}

			// Same backoff as net/http.Server.
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := time.Second; tempDelay > max {
				tempDelay = max
			}
			s.log.WithError(err).Errorf("accept failed, retrying in %v", tempDelay)

			t := time.NewTimer(tempDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return s.serveErr(ctx, ctx.Err())
			}
			continue
		}
		tempDelay = 0

		c := newConn(s, nc)
		if !s.trackConn(c, true) {
			nc.Close()
			continue
		}
		go func() {
			defer s.trackConn(c, false)
			c.serve()
		}()
	}
}

func (s *Server) serveErr(ctx context.Context, err error) error {
	if s.isClosing() {
		return ErrServerClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Send writes p as a message of type typ to the connection with the given id.
// It returns ErrNotFound if no such connection is registered.
func (s *Server) Send(id uint64, typ MessageType, p []byte) error {
	c, ok := s.reg.Lookup(id)
	if !ok {
		return fmt.Errorf("failed to send to connection %v: %w", id, ErrNotFound)
	}
	return c.Write(typ, p)
}

// Broadcast writes p to every open connection. Failed writes do not
// stop the broadcast; their errors are combined in the returned error.
func (s *Server) Broadcast(typ MessageType, p []byte) error {
	var err error
	s.reg.ForEach(func(c *Conn) {
		werr := c.Write(typ, p)
		if errors.Is(werr, ErrClosed) {
			return
		}
		if werr != nil {
			multierr.AppendInto(&err, fmt.Errorf("connection %v: %w", c.ID(), werr))
		}
	})
	return err
}

// CloseConn starts the close handshake on the connection with the given id.
func (s *Server) CloseConn(id uint64, code StatusCode, reason string) error {
	c, ok := s.reg.Lookup(id)
	if !ok {
		return fmt.Errorf("failed to close connection %v: %w", id, ErrNotFound)
	}
	return c.Close(code, reason)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackConn(c *Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing {
			return false
		}
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
	return true
}

// stopAccepting marks the server closing and closes all listeners.
func (s *Server) stopAccepting() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closing = true
	var err error
	for ln := range s.listeners {
		multierr.AppendInto(&err, ignoreClosed(ln.Close()))
		delete(s.listeners, ln)
	}
	return err
}

// Close stops accepting and immediately tears down every connection
// without a close handshake.
func (s *Server) Close() error {
	err := s.stopAccepting()

	s.mu.Lock()
	for c := range s.conns {
		multierr.AppendInto(&err, ignoreClosed(c.nc.Close()))
	}
	s.mu.Unlock()
	return err
}

// Shutdown stops accepting, starts the close handshake with
// StatusGoingAway on every open connection and waits until all
// connections are gone. If ctx is done first, it calls Close.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.stopAccepting()

	s.reg.ForEach(func(c *Conn) {
		c.Close(StatusGoingAway, "server shutting down")
	})

	// Same poll period used by net/http.
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		if s.zeroConns() {
			return err
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			s.Close()
			return multierr.Append(err, fmt.Errorf("failed to shutdown WebSockets: %w", ctx.Err()))
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) zeroConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns) == 0
}
