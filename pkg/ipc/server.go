package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/log"
)

// Handler serves IPC calls. The returned value becomes the reply body.
type Handler interface {
	HandleCall(ctx context.Context, sender, method string, body cbor.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sender, method string, body cbor.RawMessage) (any, error)

// HandleCall calls f.
func (f HandlerFunc) HandleCall(ctx context.Context, sender, method string, body cbor.RawMessage) (any, error) {
	return f(ctx, sender, method, body)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Path of the unix socket to listen on.
	Path string

	// Handler serves calls. Required.
	Handler Handler

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// Recorder captures frames, calls and replies (optional).
	Recorder *log.Recorder

	// OnConnect is called after a client connects.
	OnConnect func(sender string)

	// OnDisconnect is called after a client's connection closed.
	OnDisconnect func(sender string)
}

// Server accepts client connections on a unix socket. Each connection is
// identified by a sender id; calls on one connection are served in order.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	listener net.Listener

	conns   map[string]*ServerConn
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("socket path is required: %w", errcode.ErrInvalidParameter)
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required: %w", errcode.ErrInvalidParameter)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: config,
		logger: logger.With("component", "ipc"),
		conns:  make(map[string]*ServerConn),
	}, nil
}

// Start listens on the socket path, replacing a stale socket file.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running: %w", errcode.ErrAlready)
	}

	if err := os.Remove(s.config.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.config.Path)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("ipc listening", "path", s.config.Path)
	return nil
}

// Stop closes the listener and every connection and waits for their
// goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Emit sends a signal to one client.
func (s *Server) Emit(sender, signal string, payload any) error {
	s.connsMu.RLock()
	conn := s.conns[sender]
	s.connsMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("sender %s not connected: %w", sender, errcode.ErrIPC)
	}
	return conn.send(Message{Type: TypeSignal, Name: signal}, payload)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Warn("accept failed", "error", err)
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sender := uuid.New().String()
	framer := NewFramer(conn, s.config.MaxMessageSize)
	framer.SetRecorder(s.config.Recorder, sender)

	sconn := &ServerConn{
		conn:   conn,
		framer: framer,
		server: s,
		sender: sender,
	}

	s.connsMu.Lock()
	s.conns[sender] = sconn
	s.connsMu.Unlock()
	if !s.running.Load() {
		sconn.Close()
	}

	s.config.Recorder.State(sender, log.StateEntityConnection, "", "CONNECTED", "")
	s.logger.Debug("client connected", "sender", sender)
	if s.config.OnConnect != nil {
		s.config.OnConnect(sender)
	}

	err := sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sender)
	s.connsMu.Unlock()
	sconn.Close()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.config.Recorder.State(sender, log.StateEntityConnection, "CONNECTED", "DISCONNECTED", reason)
	s.logger.Debug("client disconnected", "sender", sender, "reason", reason)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sender)
	}
}

// ServerConn is one client connection.
type ServerConn struct {
	conn      net.Conn
	framer    *Framer
	server    *Server
	sender    string
	closeOnce sync.Once
}

// Sender returns the connection's sender id.
func (c *ServerConn) Sender() string {
	return c.sender
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) send(m Message, payload any) error {
	data, err := encodeMessage(m, payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, errcode.ErrIPC)
	}
	if m.Type == TypeSignal {
		c.server.config.Recorder.Signal(c.sender, log.DirectionOut, m.Name, 0, data)
	}
	if err := c.framer.WriteFrame(data); err != nil {
		return fmt.Errorf("%v: %w", err, errcode.ErrIPC)
	}
	return nil
}

// readLoop serves calls until the connection closes. A clean close returns
// nil.
func (c *ServerConn) readLoop() error {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.server.ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg, err := decodeMessage(data)
		if err != nil {
			c.server.logger.Warn("dropping malformed message", "sender", c.sender, "error", err)
			continue
		}
		if msg.Type != TypeCall {
			c.server.logger.Warn("unexpected message type", "sender", c.sender, "type", msg.Type)
			continue
		}
		c.serve(msg)
	}
}

func (c *ServerConn) serve(msg Message) {
	rec := c.server.config.Recorder
	rec.Call(c.sender, log.DirectionIn, msg.ID, msg.Name, msg.Body)
	start := time.Now()

	result, err := c.server.config.Handler.HandleCall(c.server.ctx, c.sender, msg.Name, msg.Body)
	code := errcode.Of(err)
	if err != nil {
		c.server.logger.Debug("call failed", "sender", c.sender, "method", msg.Name, "error", err)
		result = nil
	}

	reply := Message{Type: TypeReply, ID: msg.ID, Name: msg.Name, Code: int(code)}
	if err := c.send(reply, result); err != nil {
		c.server.logger.Warn("reply failed", "sender", c.sender, "method", msg.Name, "error", err)
	}
	rec.Reply(c.sender, log.DirectionOut, msg.ID, msg.Name, int(code), time.Since(start))
}
