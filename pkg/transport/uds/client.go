package uds

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/modoterra/uxhost/pkg/codec"
)

// EventHandler is called when the server pushes an event.
type EventHandler func(msg Message)

// Client connects to a uxhost server over a Unix domain socket.
type Client struct {
	conn    net.Conn
	codec   codec.Codec
	enc     codec.Encoder
	wmu     sync.Mutex
	mu      sync.Mutex
	pending map[string]chan Message
	events  EventHandler
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the host socket using c (JSON when nil).
func Dial(socketPath string, c codec.Codec) (*Client, error) {
	if c == nil {
		c = codec.JSON
	}
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	cl := &Client{
		conn:    conn,
		codec:   c,
		enc:     c.NewEncoder(conn),
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}
	go cl.readLoop()
	return cl, nil
}

// Codec returns the codec the client speaks.
func (c *Client) Codec() codec.Codec {
	return c.codec
}

// OnEvent registers a handler for server-pushed events.
func (c *Client) OnEvent(h EventHandler) {
	c.mu.Lock()
	c.events = h
	c.mu.Unlock()
}

// Request sends a method call and waits for the correlated response.
// A not-implemented acknowledgment is reported as ErrNotImplemented.
func (c *Client) Request(ctx context.Context, channel, method string, args any) (Message, error) {
	msg := NewRequest(channel, method, args)

	ch := make(chan Message, 1)
	c.mu.Lock()
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	err := c.enc.Encode(msg)
	c.wmu.Unlock()
	if err != nil {
		return Message{}, fmt.Errorf("write: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.NotImplemented {
			return resp, fmt.Errorf("%s/%s: %w", channel, method, ErrNotImplemented)
		}
		if resp.Error != "" {
			return resp, fmt.Errorf("server error: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrConnClosed
	}
}

// Call performs Request and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, channel, method string, args, out any) error {
	resp, err := c.Request(ctx, channel, method, args)
	if err != nil {
		return err
	}
	if out == nil || resp.Result == nil {
		return nil
	}
	return codec.Convert(c.codec, resp.Result, out)
}

// Close closes the connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}

func (c *Client) readLoop() {
	defer c.once.Do(func() { close(c.done) })

	dec := c.codec.NewDecoder(c.conn)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgTypeRes:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case MsgTypeEvt:
			c.mu.Lock()
			h := c.events
			c.mu.Unlock()
			if h != nil {
				h(msg)
			}
		}
	}
}
