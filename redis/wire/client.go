package wire

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"time"
)

// Default socket timeouts applied when the DialConfig leaves them zero.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReceiveTimeout = 30 * time.Second
)

var errSessionBroken = errors.New("session invalidated by previous transport error")

// DialConfig carries the session options for Dial.
type DialConfig struct {
	// Password authenticates the session when non-empty.
	Password string
	// DB selects a logical namespace when greater than zero.
	DB int
	// ConnectTimeout bounds the TCP connect (default 5s).
	ConnectTimeout time.Duration
	// ReceiveTimeout bounds every blocking reply read (default 30s).
	ReceiveTimeout time.Duration
}

// Client is a single wire session. Not safe for concurrent use; the
// connection pool hands each session to one goroutine at a time.
type Client struct {
	endpoint string
	cfg      DialConfig
	conn     net.Conn
	r        *bufio.Reader
	w        *bufio.Writer

	inTx      bool
	pipelined int
	piping    bool
	broken    bool
}

// Dial connects, optionally authenticates and optionally selects a logical
// namespace. Any failure surfaces as *TransportError (or *RemoteError when
// the server rejects AUTH/SELECT).
func Dial(endpoint string, cfg DialConfig) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}

	conn, err := net.DialTimeout("tcp", endpoint, cfg.ConnectTimeout)
	if err != nil {
		return nil, &TransportError{Op: "connect " + endpoint, Err: err}
	}

	c := &Client{
		endpoint: endpoint,
		cfg:      cfg,
		conn:     conn,
		r:        bufio.NewReader(conn),
		w:        bufio.NewWriter(conn),
	}

	if cfg.Password != "" {
		if err := c.expectOK("AUTH", cfg.Password); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if cfg.DB > 0 {
		if err := c.expectOK("SELECT", strconv.Itoa(cfg.DB)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

// Endpoint returns the host:port the session is connected to.
func (c *Client) Endpoint() string { return c.endpoint }

// Broken reports whether a transport error has invalidated the session.
func (c *Client) Broken() bool { return c.broken }

// Close tears down the session.
func (c *Client) Close() error {
	return c.conn.Close()
}

// --------------------------------------------------------------------------
// Request / Reply Core
// --------------------------------------------------------------------------

func args(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

// do sends one request. Outside of a pipeline it blocks for the reply;
// inside it only queues and returns the zero Reply.
func (c *Client) do(cmd [][]byte) (Reply, error) {
	op := string(cmd[0])
	if c.broken {
		return Reply{}, &TransportError{Op: op, Err: errSessionBroken}
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.ReceiveTimeout)); err != nil {
		return Reply{}, c.fail(op, err)
	}
	if err := writeCmd(c.w, cmd); err != nil {
		return Reply{}, c.fail(op, err)
	}

	if c.piping {
		c.pipelined++
		return Reply{}, nil
	}

	if err := c.w.Flush(); err != nil {
		return Reply{}, c.fail(op, err)
	}
	return c.readOne(op)
}

// readOne blocks for a single reply frame.
func (c *Client) readOne(op string) (Reply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReceiveTimeout)); err != nil {
		return Reply{}, c.fail(op, err)
	}
	reply, err := readReply(c.r)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			// The stream is desynchronized, the session cannot be reused.
			c.broken = true
			return Reply{}, err
		}
		return Reply{}, c.fail(op, err)
	}
	if err := reply.Err(); err != nil {
		return reply, err
	}
	return reply, nil
}

// fail marks the session broken and wraps the cause.
func (c *Client) fail(op string, err error) error {
	c.broken = true
	return &TransportError{Op: op, Err: err}
}

// deferred reports whether the reply is a queued-acknowledgement (inside a
// transaction) or was not read at all (inside a pipeline). Typed operations
// return their zero value in both cases.
func (c *Client) deferred(r Reply) bool {
	return c.piping || (c.inTx && r.Status() == "QUEUED")
}

func (c *Client) expectOK(parts ...string) error {
	r, err := c.do(args(parts...))
	if err != nil {
		return err
	}
	if c.deferred(r) {
		return nil
	}
	if r.Status() != "OK" {
		return &ProtocolError{Msg: parts[0] + " returned " + r.Status()}
	}
	return nil
}

func (c *Client) intReply(cmd [][]byte) (int64, error) {
	r, err := c.do(cmd)
	if err != nil || c.deferred(r) {
		return 0, err
	}
	return r.Int(), nil
}

// --------------------------------------------------------------------------
// String Operations
// --------------------------------------------------------------------------

// Ping issues a liveness echo and returns the status payload.
func (c *Client) Ping() (string, error) {
	r, err := c.do(args("PING"))
	if err != nil || c.deferred(r) {
		return "", err
	}
	return r.Status(), nil
}

// Get returns the value of a string key and whether it was present.
func (c *Client) Get(key string) ([]byte, bool, error) {
	r, err := c.do(args("GET", key))
	if err != nil || c.deferred(r) {
		return nil, false, err
	}
	b, ok := r.Bytes()
	return b, ok, nil
}

// Set stores a string key.
func (c *Client) Set(key string, val []byte) error {
	return c.expectOK("SET", key, string(val))
}

// Del removes keys and returns how many existed.
func (c *Client) Del(keys ...string) (int64, error) {
	return c.intReply(args(append([]string{"DEL"}, keys...)...))
}

// --------------------------------------------------------------------------
// Hash Operations
// --------------------------------------------------------------------------

// HSet stores one hash field.
func (c *Client) HSet(key, field string, val []byte) (int64, error) {
	return c.intReply([][]byte{[]byte("HSET"), []byte(key), []byte(field), val})
}

// HGet returns one hash field and whether it was present.
func (c *Client) HGet(key, field string) ([]byte, bool, error) {
	r, err := c.do(args("HGET", key, field))
	if err != nil || c.deferred(r) {
		return nil, false, err
	}
	b, ok := r.Bytes()
	return b, ok, nil
}

// HGetAll returns every field of a hash (empty map for a missing key).
func (c *Client) HGetAll(key string) (map[string][]byte, error) {
	r, err := c.do(args("HGETALL", key))
	if err != nil || c.deferred(r) {
		return nil, err
	}
	return r.Hash(), nil
}

// --------------------------------------------------------------------------
// Set Operations
// --------------------------------------------------------------------------

// SAdd adds members to a set.
func (c *Client) SAdd(key string, members ...string) (int64, error) {
	return c.intReply(args(append([]string{"SADD", key}, members...)...))
}

// SRem removes members from a set.
func (c *Client) SRem(key string, members ...string) (int64, error) {
	return c.intReply(args(append([]string{"SREM", key}, members...)...))
}

// SMembers enumerates a set.
func (c *Client) SMembers(key string) ([]string, error) {
	r, err := c.do(args("SMEMBERS", key))
	if err != nil || c.deferred(r) {
		return nil, err
	}
	return r.Strs(), nil
}

// SCard returns the cardinality of a set.
func (c *Client) SCard(key string) (int64, error) {
	return c.intReply(args("SCARD", key))
}

// --------------------------------------------------------------------------
// Sorted Set Operations
// --------------------------------------------------------------------------

// ZAdd adds or overwrites one scored member.
func (c *Client) ZAdd(key string, score int64, member []byte) (int64, error) {
	return c.intReply([][]byte{
		[]byte("ZADD"), []byte(key),
		[]byte(strconv.FormatInt(score, 10)), member,
	})
}

// ZCard returns the cardinality of a sorted set.
func (c *Client) ZCard(key string) (int64, error) {
	return c.intReply(args("ZCARD", key))
}

// ZRangeByScore returns members with min <= score <= max in ascending score
// order. Bounds use the wire syntax ("-inf", "+inf", "(5", "5"). A limit of
// zero means unbounded.
func (c *Client) ZRangeByScore(key, min, max string, limit int) ([][]byte, error) {
	cmd := args("ZRANGEBYSCORE", key, min, max)
	if limit > 0 {
		cmd = append(cmd, args("LIMIT", "0", strconv.Itoa(limit))...)
	}
	return c.memberReply(cmd)
}

// ZRevRangeByScore returns members with max >= score >= min in descending
// score order. A limit of zero means unbounded.
func (c *Client) ZRevRangeByScore(key, max, min string, limit int) ([][]byte, error) {
	cmd := args("ZREVRANGEBYSCORE", key, max, min)
	if limit > 0 {
		cmd = append(cmd, args("LIMIT", "0", strconv.Itoa(limit))...)
	}
	return c.memberReply(cmd)
}

// ZRemRangeByScore removes every member with min <= score <= max.
func (c *Client) ZRemRangeByScore(key, min, max string) (int64, error) {
	return c.intReply(args("ZREMRANGEBYSCORE", key, min, max))
}

func (c *Client) memberReply(cmd [][]byte) ([][]byte, error) {
	r, err := c.do(cmd)
	if err != nil || c.deferred(r) {
		return nil, err
	}
	out := make([][]byte, 0, len(r.Arr()))
	for _, e := range r.Arr() {
		b, _ := e.Bytes()
		out = append(out, b)
	}
	return out, nil
}
