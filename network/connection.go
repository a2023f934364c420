package network

import (
	"net"
	"sync"
	"time"
)

type Connection interface {
	ReadMessage() (*Message, error)
	// Send queues one message. It never blocks on the peer.
	Send(tag string, body any) error
	// Close flushes queued messages, then closes the underlying connection.
	Close() error
	RemoteAddr() net.Addr
	// Done is closed once the underlying connection has been closed.
	Done() <-chan struct{}
}

type TCPConnection struct {
	conn         net.Conn
	framer       *Framer
	writeTimeout time.Duration

	sendMutex sync.Mutex
	out       chan []byte
	closed    bool
	done      chan struct{}
}

type Options struct {
	MaxLineLength int
	SendQueue     int
	WriteTimeout  time.Duration
}

func NewTCPConnection(conn net.Conn, opts Options) *TCPConnection {
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	c := &TCPConnection{
		conn:         conn,
		framer:       NewFramer(conn, opts.MaxLineLength),
		writeTimeout: opts.WriteTimeout,
		out:          make(chan []byte, opts.SendQueue),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *TCPConnection) ReadMessage() (*Message, error) {
	return c.framer.NextMessage()
}

func (c *TCPConnection) Send(tag string, body any) error {
	line, err := Encode(tag, body)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.out <- line:
		return nil
	default:
		// A peer that stops reading is cut off rather than buffered without bound.
		c.closeLocked()
		c.conn.Close()
		return ErrSendQueueFull
	}
}

func (c *TCPConnection) Close() error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	c.closeLocked()
	return nil
}

func (c *TCPConnection) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *TCPConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *TCPConnection) Done() <-chan struct{} {
	return c.done
}

func (c *TCPConnection) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()

	failed := false
	for line := range c.out {
		if failed {
			continue
		}
		if c.writeTimeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := c.conn.Write(line); err != nil {
			failed = true
			c.conn.Close()
		}
	}
}
