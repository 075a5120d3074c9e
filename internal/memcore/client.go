package memcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/reliability"
)

const logSource = "memcore"

const (
	connectAttempts = 3
	backoffBase     = 200 * time.Millisecond
	backoffCap      = 2 * time.Second
	dialTimeout     = 5 * time.Second
)

var (
	errClientClosed = errors.New("memcore: client closed")
	errAuthRejected = errors.New("memcore: authentication rejected")
)

// authDetail extracts the backend's message from an auth rejection error.
func authDetail(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// Config carries the backend endpoint and credentials.
type Config struct {
	URL       string
	Login     string
	Password  string
	Partition string
}

type opResult struct {
	resp serverMessage
	err  error
}

type operation struct {
	payload any
	result  chan opResult
}

// Client talks to the memory backend over one persistent websocket. Every
// public operation funnels through a FIFO: the wire protocol carries no
// correlation ids, so the reader resolves pending operations strictly in
// request order. Storage failures never propagate to the conversation; the
// helpers degrade to synthetic ids or empty results and report through the
// event log.
type Client struct {
	cfg Config
	log *eventlog.Log

	ops       chan *operation
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   []*operation
	connected bool
}

// NewClient creates the client and starts its dispatch worker. The first
// connection is made lazily by the first operation.
func NewClient(cfg Config, log *eventlog.Log) *Client {
	c := &Client{
		cfg:  cfg,
		log:  log,
		ops:  make(chan *operation, 16),
		done: make(chan struct{}),
	}
	go c.worker()
	return c
}

// Connected reports whether an authenticated connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close stops the worker and drops the connection. In-flight operations are
// rejected.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		c.failPending(errClientClosed)
	})
}

// Insert archives one record. It never fails upward: when the backend is
// unreachable or rejects the write, a synthetic offline id is returned so the
// conversation can keep moving.
func (c *Client) Insert(ctx context.Context, content, category string, tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	categories := []string{}
	if category != "" {
		categories = append(categories, category)
	}
	resp, err := c.do(ctx, insertRequest{
		Type:       "insert",
		Partition:  c.cfg.Partition,
		Data:       content,
		Tags:       tags,
		Categories: categories,
	})
	if err != nil {
		c.log.Error(logSource, "insert failed: "+err.Error())
		return "offline-id-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	c.log.Success(logSource, "archived record "+resp.ID)
	return resp.ID
}

// FetchAll retrieves the full record set for the partition. Failures degrade
// to an empty result.
func (c *Client) FetchAll(ctx context.Context) []Record {
	resp, err := c.do(ctx, searchRequest{
		Type:       "search",
		Partition:  c.cfg.Partition,
		Tags:       []string{},
		Categories: []string{},
	})
	if err != nil {
		c.log.Error(logSource, "fetch failed: "+err.Error())
		return nil
	}
	records := make([]Record, 0, len(resp.Items))
	for _, it := range resp.Items {
		records = append(records, it.toRecord())
	}
	return records
}

// Search fetches the full record set and filters it client-side. A vacuous
// query (no text, no tags) returns nothing without touching the backend.
func (c *Client) Search(ctx context.Context, query string, tags []string) []Record {
	if query == "" && len(tags) == 0 {
		return nil
	}
	return filterRecords(c.FetchAll(ctx), query, tags)
}

func (c *Client) do(ctx context.Context, payload any) (serverMessage, error) {
	op := &operation{payload: payload, result: make(chan opResult, 1)}
	select {
	case c.ops <- op:
	case <-ctx.Done():
		return serverMessage{}, ctx.Err()
	case <-c.done:
		return serverMessage{}, errClientClosed
	}
	select {
	case r := <-op.result:
		return r.resp, r.err
	case <-ctx.Done():
		return serverMessage{}, ctx.Err()
	case <-c.done:
		return serverMessage{}, errClientClosed
	}
}

func (c *Client) worker() {
	for {
		select {
		case <-c.done:
			return
		case op := <-c.ops:
			c.dispatch(op)
		}
	}
}

func (c *Client) dispatch(op *operation) {
	conn, err := c.ensureConnected()
	if err != nil {
		op.result <- opResult{err: err}
		return
	}

	c.mu.Lock()
	c.pending = append(c.pending, op)
	c.mu.Unlock()

	if err := conn.WriteJSON(op.payload); err != nil {
		c.dropConnection(conn, fmt.Errorf("write: %w", err))
	}
}

// ensureConnected dials and authenticates if no connection is up, retrying
// with exponential backoff. An existing connection is reused as-is.
func (c *Client) ensureConnected() (*websocket.Conn, error) {
	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(reliability.ExponentialBackoff(attempt, backoffBase, backoffCap)):
			case <-c.done:
				return nil, errClientClosed
			}
		}
		conn, err := c.connect()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		// Bad credentials will not get better with retries.
		if errors.Is(err, errAuthRejected) && !reliability.IsRetryableBackendError(authDetail(err)) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) connect() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial memory backend: %w", err)
	}

	// The connection is unusable until the backend accepts the credentials.
	auth := authRequest{Type: "auth", Login: c.cfg.Login, Password: c.cfg.Password}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}
	var reply serverMessage
	if err := conn.ReadJSON(&reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		_ = conn.Close()
		if reply.Type == "error" {
			return nil, fmt.Errorf("%w: %s", errAuthRejected, reply.Message)
		}
		return nil, fmt.Errorf("unexpected auth reply %q", reply.Type)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.Info(logSource, "connected to memory backend")
	go c.readLoop(conn)
	return conn, nil
}

// readLoop resolves pending operations in arrival order. An error-typed
// message rejects the front of the queue; any other type resolves it.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.dropConnection(conn, fmt.Errorf("read: %w", err))
			return
		}
		op := c.popPending()
		if op == nil {
			continue // unsolicited message, nothing to pair it with
		}
		if msg.Type == "error" {
			op.result <- opResult{err: errors.New(msg.Message)}
			continue
		}
		op.result <- opResult{resp: msg}
	}
}

func (c *Client) popPending() *operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	op := c.pending[0]
	c.pending = c.pending[1:]
	return op
}

// dropConnection tears down conn if it is still current and rejects every
// pending operation. The next operation reconnects.
func (c *Client) dropConnection(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	_ = conn.Close()
	c.failPending(cause)
	c.log.Error(logSource, "memory backend connection lost: "+cause.Error())
}

func (c *Client) failPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, op := range pending {
		op.result <- opResult{err: cause}
	}
}
