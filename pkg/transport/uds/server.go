package uds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/codec"
)

// Server listens on a Unix domain socket and dispatches method calls to
// the handler registered for each channel.
type Server struct {
	socketPath string
	codec      codec.Codec
	logger     *slog.Logger

	hmu      sync.RWMutex
	handlers map[string]bridge.Handler

	mu       sync.Mutex
	listener net.Listener
	clients  map[*peer]struct{}
}

const (
	outboxSize   = 64
	writeTimeout = 5 * time.Second
)

// peer owns one connection. All writes go through its outbox and are
// performed by writeLoop, so no caller ever blocks on a slow reader.
type peer struct {
	conn   net.Conn
	enc    codec.Encoder
	out    chan Message
	closed chan struct{}
	once   sync.Once
}

func newPeer(conn net.Conn, enc codec.Encoder) *peer {
	return &peer{
		conn:   conn,
		enc:    enc,
		out:    make(chan Message, outboxSize),
		closed: make(chan struct{}),
	}
}

// writeLoop drains the outbox. A write that does not finish within
// writeTimeout closes the connection.
func (p *peer) writeLoop() error {
	for {
		select {
		case msg := <-p.out:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.enc.Encode(msg); err != nil {
				select {
				case <-p.closed:
					return nil
				default:
				}
				p.close()
				return err
			}
		case <-p.closed:
			return nil
		}
	}
}

// reply queues a response, waiting for room in the outbox.
func (p *peer) reply(msg Message) error {
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return ErrConnClosed
	}
}

// notify queues an event if there is room and reports whether it did.
func (p *peer) notify(msg Message) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

// NewServer creates a new UDS server speaking c.
func NewServer(socketPath string, c codec.Codec, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = codec.JSON
	}
	return &Server{
		socketPath: socketPath,
		codec:      c,
		handlers:   make(map[string]bridge.Handler),
		clients:    make(map[*peer]struct{}),
		logger:     logger,
	}
}

// Handle registers the handler for a channel, replacing any previous one.
func (s *Server) Handle(channel string, h bridge.Handler) {
	s.hmu.Lock()
	s.handlers[channel] = h
	s.hmu.Unlock()
}

// Listen binds the socket. It removes any stale socket file first.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "socket", s.socketPath, "codec", s.codec.Name())
	return nil
}

// Serve accepts connections until ctx is cancelled. Listen must have
// been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil // shutting down
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		p := newPeer(conn, s.codec.NewEncoder(conn))
		s.mu.Lock()
		s.clients[p] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(p)
	}
}

// Start binds the socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Broadcast queues an event for every connected client without
// waiting. Clients whose outbox is full miss the event.
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.clients))
	for p := range s.clients {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if !p.notify(msg) {
			s.logger.Debug("client outbox full, event dropped", "method", msg.Method)
		}
	}
}

// Shutdown cleanly stops the server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for p := range s.clients {
		p.close()
	}
	s.mu.Unlock()
	os.Remove(s.socketPath)
}

func (s *Server) handleConn(p *peer) {
	defer func() {
		p.close()
		s.mu.Lock()
		delete(s.clients, p)
		s.mu.Unlock()
	}()

	go func() {
		if err := p.writeLoop(); err != nil {
			s.logger.Warn("client write failed, closing connection", "err", err)
		}
	}()

	dec := s.codec.NewDecoder(p.conn)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("invalid message, closing connection", "err", err)
			}
			return
		}

		if msg.Type != MsgTypeReq {
			continue
		}

		if err := p.reply(s.dispatch(msg)); err != nil {
			return
		}
	}
}

// dispatch runs one request to completion and builds exactly one response.
func (s *Server) dispatch(msg Message) Message {
	s.hmu.RLock()
	h, ok := s.handlers[msg.Channel]
	s.hmu.RUnlock()
	if !ok {
		return NewErrorResponse(msg, "unknown_channel", fmt.Sprintf("unknown channel: %s", msg.Channel))
	}

	rep := bridge.Invoke(h, bridge.MethodCall{Method: msg.Method, Arguments: msg.Args})
	switch rep.Kind {
	case bridge.ReplyNotImplemented:
		return NewNotImplementedResponse(msg)
	case bridge.ReplyError:
		return NewErrorResponse(msg, rep.Code, rep.Message)
	default:
		return NewResponse(msg, rep.Value)
	}
}
