package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// DefaultCallTimeout bounds a call when neither the context nor SetTimeout
// does.
const DefaultCallTimeout = 30 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// Path of the daemon's unix socket.
	Path string

	// Timeout bounds each call (default: DefaultCallTimeout).
	Timeout time.Duration

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// Recorder captures frames, calls and signals (optional).
	Recorder *log.Recorder

	// OnSignal receives signals in arrival order on a dedicated goroutine.
	// It may issue calls.
	OnSignal func(name string, body cbor.RawMessage)

	// OnClose is called once when the connection is lost. It is not called
	// after Close.
	OnClose func(err error)
}

// Client is a connection to the daemon. It is safe for concurrent use.
type Client struct {
	config ClientConfig
	logger *slog.Logger
	conn   net.Conn
	framer *Framer
	connID string

	nextID  atomic.Uint64
	timeout atomic.Int64

	mu      sync.Mutex
	pending map[uint64]chan Message
	closed  bool

	signals *signalQueue
	done    chan struct{}
	wg      sync.WaitGroup
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("socket path is required: %w", errcode.ErrInvalidParameter)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCallTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", config.Path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", config.Path, err, errcode.ErrIPC)
	}

	connID := uuid.New().String()
	framer := NewFramer(conn, config.MaxMessageSize)
	framer.SetRecorder(config.Recorder, connID)

	c := &Client{
		config:  config,
		logger:  logger.With("component", "ipc-client"),
		conn:    conn,
		framer:  framer,
		connID:  connID,
		pending: make(map[uint64]chan Message),
		signals: newSignalQueue(),
		done:    make(chan struct{}),
	}
	c.timeout.Store(int64(config.Timeout))
	config.Recorder.State(connID, log.StateEntityConnection, "", "CONNECTED", config.Path)

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()
	return c, nil
}

// SetTimeout changes the per-call timeout.
func (c *Client) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("timeout %v: %w", d, errcode.ErrInvalidParameter)
	}
	c.timeout.Store(int64(d))
	return nil
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call invokes method with args and decodes the reply body into reply,
// which may be nil. Daemon errors come back as errcode values.
func (c *Client) Call(ctx context.Context, method string, args any, reply any) error {
	id := c.nextID.Add(1)
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: connection closed: %w", method, errcode.ErrIPC)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := encodeMessage(Message{Type: TypeCall, ID: id, Name: method}, args)
	if err == nil {
		c.config.Recorder.Call(c.connID, log.DirectionOut, id, method, data)
		err = c.framer.WriteFrame(data)
	}
	if err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %v: %w", method, err, errcode.ErrIPC)
	}

	timer := time.NewTimer(c.Timeout())
	defer timer.Stop()

	select {
	case msg := <-ch:
		if err := msg.Err(); err != nil {
			return err
		}
		if reply != nil && len(msg.Body) > 0 {
			if err := wire.DecodePayload(msg.Body, reply); err != nil {
				return fmt.Errorf("%s: %v: %w", method, err, errcode.ErrIPC)
			}
		}
		return nil
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%s: %w", method, errcode.ErrTimeout)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: connection lost: %w", method, errcode.ErrIPC)
	}
}

// Close closes the connection and waits for the reader and signal
// dispatcher to finish.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	var readErr error
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			readErr = err
			break
		}
		msg, err := decodeMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case TypeReply:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case TypeSignal:
			c.config.Recorder.Signal(c.connID, log.DirectionIn, msg.Name, 0, msg.Body)
			c.signals.push(msg)
		default:
			c.logger.Warn("unexpected message type", "type", msg.Type)
		}
	}

	c.mu.Lock()
	local := c.closed
	c.closed = true
	c.pending = make(map[uint64]chan Message)
	c.mu.Unlock()

	close(c.done)
	c.signals.close()

	if errors.Is(readErr, io.EOF) || errors.Is(readErr, net.ErrClosed) {
		readErr = fmt.Errorf("daemon closed the connection: %w", errcode.ErrIPC)
	}
	c.config.Recorder.State(c.connID, log.StateEntityConnection, "CONNECTED", "DISCONNECTED", readErr.Error())
	if !local {
		c.logger.Warn("connection lost", "error", readErr)
		c.conn.Close()
		if c.config.OnClose != nil {
			c.config.OnClose(readErr)
		}
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		msg, ok := c.signals.pop()
		if !ok {
			return
		}
		if c.config.OnSignal != nil {
			c.config.OnSignal(msg.Name, msg.Body)
		}
	}
}

// signalQueue is an unbounded FIFO so the reader never blocks on a slow
// signal consumer.
type signalQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Message
	closed bool
}

func newSignalQueue() *signalQueue {
	q := &signalQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *signalQueue) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a message is queued. After close it drains the queue and
// then reports false.
func (q *signalQueue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

func (q *signalQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
