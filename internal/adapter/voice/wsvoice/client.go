// Package wsvoice implements call.Transport over a websocket to a hosted
// voice agent.
package wsvoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/call"
)

const (
	defaultConnectTimeout = 15 * time.Second
	writeTimeout          = 5 * time.Second
	callPath              = "/call/ws"
)

// ErrAlreadyStarted is returned by a second Start on the same client.
var ErrAlreadyStarted = errors.New("voice call already started")

// ErrStopped is returned by Start when Stop ran before the connection was up.
var ErrStopped = errors.New("voice call stopped before connecting")

// frame is the wire shape of every message in both directions.
type frame struct {
	Type           string         `json:"type"`
	Target         string         `json:"target,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	Role           string         `json:"role,omitempty"`
	TranscriptType string         `json:"transcriptType,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	Error          *frameError    `json:"error,omitempty"`
}

type frameError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client is a single-call transport. Create one per call.
type Client struct {
	baseURL string
	apiKey  string
	dialer  *websocket.Dialer
	log     *slog.Logger

	lmu       sync.Mutex
	listeners map[int]call.Listener
	nextID    int

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	started bool

	stopping atomic.Bool
	ended    atomic.Bool
	done     chan struct{}
}

var _ call.Transport = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New builds a client for baseURL (http, https, ws or wss).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		dialer:    websocket.DefaultDialer,
		log:       slog.Default(),
		listeners: make(map[int]call.Listener),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL + callPath)
	if err != nil {
		return "", fmt.Errorf("op=wsvoice.endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("op=wsvoice.endpoint: unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Start dials the voice service and asks it to run target with params.
// ctx bounds the dial and the start frame only.
func (c *Client) Start(ctx context.Context, target string, params map[string]any) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	wsURL, err := c.endpoint()
	if err != nil {
		return err
	}
	headers := make(http.Header)
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}
	conn, resp, err := c.dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("op=wsvoice.Start: dial status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("op=wsvoice.Start: %w", err)
	}

	c.mu.Lock()
	if c.stopping.Load() {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("op=wsvoice.Start: %w", ErrStopped)
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(frame{Type: "start", Target: target, Params: params}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("op=wsvoice.Start: send start: %w", err)
	}
	go c.readLoop(conn)
	return nil
}

// Stop asks the service to end the call and closes the socket. Safe to call
// more than once and before Start.
func (c *Client) Stop() error {
	if !c.stopping.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	sendErr := c.send(frame{Type: "stop"})
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	closeErr := conn.Close()
	if sendErr != nil && !errors.Is(sendErr, websocket.ErrCloseSent) {
		return fmt.Errorf("op=wsvoice.Stop: %w", sendErr)
	}
	if closeErr != nil {
		return fmt.Errorf("op=wsvoice.Stop: %w", closeErr)
	}
	return nil
}

// Subscribe registers l for every event until the returned func is called.
func (c *Client) Subscribe(l call.Listener) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.lmu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.lmu.Lock()
			delete(c.listeners, id)
			c.lmu.Unlock()
		})
	}
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) send(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

func (c *Client) emit(fn func(call.Listener)) {
	c.lmu.Lock()
	ls := make([]call.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.lmu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.done)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if c.stopping.Load() || c.ended.Load() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.emit(func(l call.Listener) { l.OnError(&call.TransportError{Type: "connection", Message: err.Error()}) })
			}
			c.end()
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("voice frame undecodable", slog.Any("error", err), slog.Int("size", len(data)))
			continue
		}
		c.dispatch(f, data)
	}
}

func (c *Client) end() {
	if c.ended.CompareAndSwap(false, true) {
		c.emit(func(l call.Listener) { l.OnCallEnd() })
	}
}

func (c *Client) dispatch(f frame, raw []byte) {
	switch f.Type {
	case "call-start":
		c.emit(func(l call.Listener) { l.OnCallStart() })
	case "call-end":
		c.end()
	case "transcript":
		m := call.Message{
			Type:           call.MessageTranscript,
			Role:           f.Role,
			TranscriptType: call.TranscriptType(f.TranscriptType),
			Transcript:     f.Transcript,
		}
		c.emit(func(l call.Listener) { l.OnMessage(m) })
	case "speech-start":
		c.emit(func(l call.Listener) { l.OnSpeechStart() })
	case "speech-end":
		c.emit(func(l call.Listener) { l.OnSpeechEnd() })
	case "error":
		te := &call.TransportError{Type: "error", Raw: append([]byte(nil), raw...)}
		if f.Error != nil {
			te.Type = f.Error.Type
			te.Message = f.Error.Message
		}
		c.emit(func(l call.Listener) { l.OnError(te) })
	default:
		c.log.Debug("voice frame ignored", slog.String("type", f.Type))
	}
}
