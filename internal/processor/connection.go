package processor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

const (
	readChunkSize        = 1024
	DefaultLingerTimeout = 100 * time.Millisecond
)

var errRequestTooLarge = errors.New("request exceeds maximum size")

// Options controls the blocking points of a connection. A zero ReadTimeout or
// WriteTimeout means the operation may block forever.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IdleWindow bounds every read after the first; the request is complete
	// once no bytes arrive within it. This is not HTTP framing: a client that
	// pauses mid-request is cut short.
	IdleWindow time.Duration

	MaxRequestBytes int

	// LingerTimeout bounds how long unread input is drained after the response
	// is sent, so the close is not turned into a reset.
	LingerTimeout time.Duration
}

// OptionsFromConfig maps server configuration onto connection options.
func OptionsFromConfig(cfg *config.ServerConfig) Options {
	return Options{
		ReadTimeout:     cfg.ReadTimeout.Std(),
		WriteTimeout:    cfg.WriteTimeout.Std(),
		IdleWindow:      cfg.IdleWindow.Std(),
		MaxRequestBytes: cfg.MaxRequestBytes,
		LingerTimeout:   DefaultLingerTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.IdleWindow <= 0 {
		o.IdleWindow = config.DefaultIdleWindow
	}
	if o.MaxRequestBytes <= 0 {
		o.MaxRequestBytes = config.DefaultMaxRequestBytes
	}
	if o.LingerTimeout <= 0 {
		o.LingerTimeout = DefaultLingerTimeout
	}
	return o
}

// State is the lifecycle position of a connection.
type State int32

const (
	StateAccepted State = iota
	StateReading
	StateParsed
	StateShortCircuited
	StatePreProcessed
	StateRouted
	StatePostProcessed
	StateWritten
	StateRejected
	StateClosed
)

var stateNames = [...]string{
	"Accepted", "Reading", "Parsed", "ShortCircuited", "PreProcessed",
	"Routed", "PostProcessed", "Written", "Rejected", "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Connection owns one accepted connection and writes exactly one response to it.
type Connection struct {
	conn     net.Conn
	pipeline *Pipeline
	opts     Options
	id       string
	state    atomic.Int32
}

// NewConnection binds an accepted connection to the shared pipeline.
func NewConnection(conn net.Conn, pipeline *Pipeline, opts Options) *Connection {
	return &Connection{
		conn:     conn,
		pipeline: pipeline,
		opts:     opts.withDefaults(),
		id:       uuid.NewString(),
	}
}

// ID uniquely identifies the connection in logs and request properties.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// State reports the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
	logger.Tracef("connection %s: %s", c.id, s)
}

// Process reads one request, runs it through the pipeline and writes the
// response. The connection is always closed on return. An error means no
// complete response reached the peer.
func (c *Connection) Process() error {
	defer c.close()

	c.setState(StateReading)
	raw, err := c.readRequest()

	var req *exchange.Request
	switch {
	case errors.Is(err, errRequestTooLarge):
		req = &exchange.Request{Status: http.StatusRequestEntityTooLarge, Properties: map[string]string{}}
	case err != nil:
		return fmt.Errorf("failed to read request from %s: %w", c.RemoteAddr(), err)
	default:
		req = exchange.ParseRequest(raw)
	}
	req.AddProperty(exchange.PropertyRemoteEndPoint, c.RemoteAddr())
	req.AddProperty(exchange.PropertyConnectionID, c.id)
	c.setState(StateParsed)

	resp, err := c.pipeline.run(req, c.setState)
	if err != nil {
		return err
	}
	if err := c.write(resp); err != nil {
		return err
	}
	logger.Infof("handled request - url:%s, client:%s, status:%d, length:%d", req.URL, c.RemoteAddr(), resp.StatusCode, len(resp.Body))
	return nil
}

// CloseBeforeProcess rejects the connection with 429 Too Many Requests
// without reading the request or running the pipeline. It never reads from
// the peer, so it returns as soon as the response is written.
func (c *Connection) CloseBeforeProcess() error {
	defer c.abort()

	c.setState(StateRejected)
	if err := c.write(exchange.NewResponse(http.StatusTooManyRequests)); err != nil {
		return err
	}
	logger.Infof("rejected connection from %s: no worker available", c.RemoteAddr())
	return nil
}

// readRequest reads until the peer goes quiet. The first read waits up to
// ReadTimeout (or forever); later reads wait at most IdleWindow.
func (c *Connection) readRequest() (string, error) {
	var data bytes.Buffer
	buf := make([]byte, readChunkSize)

	deadline := time.Time{}
	if c.opts.ReadTimeout > 0 {
		deadline = time.Now().Add(c.opts.ReadTimeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	for first := true; ; first = false {
		n, err := c.conn.Read(buf)
		data.Write(buf[:n])
		if data.Len() > c.opts.MaxRequestBytes {
			return "", errRequestTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if !first && errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return "", err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleWindow)); err != nil {
			return "", err
		}
	}
	return data.String(), nil
}

// write sends the header block then the body, as a single write sequence.
func (c *Connection) write(resp *exchange.Response) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if _, err := resp.WriteTo(c.conn); err != nil {
		return fmt.Errorf("failed to write response to %s: %w", c.RemoteAddr(), err)
	}
	c.setState(StateWritten)
	return nil
}

// abort shuts down both directions and closes without draining input.
func (c *Connection) abort() {
	if hc, ok := c.conn.(halfCloser); ok {
		_ = hc.CloseWrite()
		_ = hc.CloseRead()
	}
	if err := c.conn.Close(); err != nil {
		logger.Debugf("connection %s: close: %v", c.id, err)
	}
	c.setState(StateClosed)
}

type halfCloser interface {
	CloseWrite() error
	CloseRead() error
}

// close shuts down both directions. Pending input is drained for up to
// LingerTimeout first, because closing a socket with unread data resets it
// and may destroy the response in flight.
func (c *Connection) close() {
	if hc, ok := c.conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err == nil {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.LingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(c.conn, int64(c.opts.MaxRequestBytes)))
		}
		_ = hc.CloseRead()
	}
	if err := c.conn.Close(); err != nil {
		logger.Debugf("connection %s: close: %v", c.id, err)
	}
	c.setState(StateClosed)
}
