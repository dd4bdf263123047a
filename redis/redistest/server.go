// Package redistest runs a minimal in-process Redis look-alike for tests:
// a TCP server speaking enough of the wire protocol (strings, hashes,
// sets, sorted sets, transactions) to exercise the wire client, the pool
// and the store engine without an external server.
package redistest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// respErr is a server-side error reply.
type respErr string

// status is a simple status reply ("+OK").
type status string

// Server is the fake server. All state lives in one flat namespace; SELECT
// is accepted and ignored.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	password string
	strs     map[string]string
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	zsets    map[string]map[string]int64
	conns    map[net.Conn]struct{}

	wg     sync.WaitGroup
	closed bool
}

// Start listens on an ephemeral localhost port.
func Start() (*Server, error) {
	return StartAuth("")
}

// StartAuth listens with a required password.
func StartAuth(password string) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:       ln,
		password: password,
		strs:     map[string]string{},
		hashes:   map[string]map[string]string{},
		sets:     map[string]map[string]struct{}{},
		zsets:    map[string]map[string]int64{},
		conns:    map[net.Conn]struct{}{},
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listen address ("127.0.0.1:port").
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Endpoint returns a connection URI for the server.
func (s *Server) Endpoint() string { return "redis://" + s.Addr() + "/0" }

// Close stops the listener and drops every established connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

// --------------------------------------------------------------------------
// Connection Loop
// --------------------------------------------------------------------------

func (s *Server) handle(conn net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	inTx := false
	var queued [][]string
	authed := s.password == ""

	for {
		cmd, err := readCmd(r)
		if err != nil {
			return
		}
		if len(cmd) == 0 {
			continue
		}
		name := strings.ToUpper(cmd[0])

		var reply any
		switch {
		case name == "AUTH":
			if len(cmd) == 2 && cmd[1] == s.password {
				authed = true
				reply = status("OK")
			} else {
				reply = respErr("ERR invalid password")
			}
		case !authed:
			reply = respErr("NOAUTH Authentication required.")
		case name == "MULTI":
			inTx = true
			queued = nil
			reply = status("OK")
		case name == "DISCARD":
			inTx = false
			queued = nil
			reply = status("OK")
		case name == "EXEC":
			if !inTx {
				reply = respErr("ERR EXEC without MULTI")
			} else {
				inTx = false
				replies := make([]any, len(queued))
				s.mu.Lock()
				for i, q := range queued {
					replies[i] = s.exec(q)
				}
				s.mu.Unlock()
				queued = nil
				reply = replies
			}
		case inTx:
			queued = append(queued, cmd)
			reply = status("QUEUED")
		default:
			s.mu.Lock()
			reply = s.exec(cmd)
			s.mu.Unlock()
		}

		if err := writeReply(w, reply); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Command Dispatch
// --------------------------------------------------------------------------

// exec runs one command against the store. The caller holds the mutex.
func (s *Server) exec(cmd []string) any {
	name := strings.ToUpper(cmd[0])
	switch name {
	case "PING":
		return status("PONG")
	case "SELECT":
		return status("OK")

	case "GET":
		if v, ok := s.strs[cmd[1]]; ok {
			return []byte(v)
		}
		return nil
	case "SET":
		s.strs[cmd[1]] = cmd[2]
		return status("OK")
	case "DEL":
		n := int64(0)
		for _, key := range cmd[1:] {
			if s.delKey(key) {
				n++
			}
		}
		return n

	case "HSET":
		h, ok := s.hashes[cmd[1]]
		if !ok {
			h = map[string]string{}
			s.hashes[cmd[1]] = h
		}
		_, had := h[cmd[2]]
		h[cmd[2]] = cmd[3]
		if had {
			return int64(0)
		}
		return int64(1)
	case "HGET":
		if v, ok := s.hashes[cmd[1]][cmd[2]]; ok {
			return []byte(v)
		}
		return nil
	case "HGETALL":
		h := s.hashes[cmd[1]]
		fields := make([]string, 0, len(h))
		for f := range h {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out := make([]any, 0, 2*len(h))
		for _, f := range fields {
			out = append(out, []byte(f), []byte(h[f]))
		}
		return out

	case "SADD":
		set, ok := s.sets[cmd[1]]
		if !ok {
			set = map[string]struct{}{}
			s.sets[cmd[1]] = set
		}
		n := int64(0)
		for _, m := range cmd[2:] {
			if _, had := set[m]; !had {
				set[m] = struct{}{}
				n++
			}
		}
		return n
	case "SREM":
		set := s.sets[cmd[1]]
		n := int64(0)
		for _, m := range cmd[2:] {
			if _, had := set[m]; had {
				delete(set, m)
				n++
			}
		}
		return n
	case "SMEMBERS":
		set := s.sets[cmd[1]]
		members := make([]string, 0, len(set))
		for m := range set {
			members = append(members, m)
		}
		sort.Strings(members)
		out := make([]any, len(members))
		for i, m := range members {
			out[i] = []byte(m)
		}
		return out
	case "SCARD":
		return int64(len(s.sets[cmd[1]]))

	case "ZADD":
		score, err := strconv.ParseInt(cmd[2], 10, 64)
		if err != nil {
			return respErr("ERR value is not a valid integer")
		}
		z, ok := s.zsets[cmd[1]]
		if !ok {
			z = map[string]int64{}
			s.zsets[cmd[1]] = z
		}
		_, had := z[cmd[3]]
		z[cmd[3]] = score
		if had {
			return int64(0)
		}
		return int64(1)
	case "ZCARD":
		return int64(len(s.zsets[cmd[1]]))
	case "ZRANGEBYSCORE":
		return s.zrange(cmd, false)
	case "ZREVRANGEBYSCORE":
		return s.zrange(cmd, true)
	case "ZREMRANGEBYSCORE":
		min, err1 := parseBound(cmd[2])
		max, err2 := parseBound(cmd[3])
		if err1 != nil || err2 != nil {
			return respErr("ERR min or max is not a float")
		}
		z := s.zsets[cmd[1]]
		n := int64(0)
		for m, sc := range z {
			if min.admits(sc) && max.admitsMax(sc) {
				delete(z, m)
				n++
			}
		}
		return n
	}
	return respErr("ERR unknown command '" + cmd[0] + "'")
}

func (s *Server) delKey(key string) bool {
	_, a := s.strs[key]
	_, b := s.hashes[key]
	_, c := s.sets[key]
	_, d := s.zsets[key]
	delete(s.strs, key)
	delete(s.hashes, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	return a || b || c || d
}

// --------------------------------------------------------------------------
// Sorted Set Ranges
// --------------------------------------------------------------------------

// bound is one parsed score bound: value, exclusivity and infinity flags.
type bound struct {
	val    int64
	excl   bool
	negInf bool
	posInf bool
}

func parseBound(s string) (bound, error) {
	switch s {
	case "-inf":
		return bound{negInf: true}, nil
	case "+inf", "inf":
		return bound{posInf: true}, nil
	}
	excl := false
	if strings.HasPrefix(s, "(") {
		excl = true
		s = s[1:]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return bound{}, err
	}
	return bound{val: v, excl: excl}, nil
}

// admits checks the bound as a lower bound.
func (b bound) admits(score int64) bool {
	if b.negInf {
		return true
	}
	if b.posInf {
		return false
	}
	if b.excl {
		return score > b.val
	}
	return score >= b.val
}

// admitsMax checks the bound as an upper bound.
func (b bound) admitsMax(score int64) bool {
	if b.posInf {
		return true
	}
	if b.negInf {
		return false
	}
	if b.excl {
		return score < b.val
	}
	return score <= b.val
}

type scored struct {
	member string
	score  int64
}

// zrange handles ZRANGEBYSCORE / ZREVRANGEBYSCORE with an optional
// LIMIT offset count suffix.
func (s *Server) zrange(cmd []string, rev bool) any {
	var min, max bound
	var err1, err2 error
	if rev {
		max, err1 = parseBound(cmd[2])
		min, err2 = parseBound(cmd[3])
	} else {
		min, err1 = parseBound(cmd[2])
		max, err2 = parseBound(cmd[3])
	}
	if err1 != nil || err2 != nil {
		return respErr("ERR min or max is not a float")
	}

	offset, count := 0, -1
	if len(cmd) >= 7 && strings.ToUpper(cmd[4]) == "LIMIT" {
		offset, _ = strconv.Atoi(cmd[5])
		count, _ = strconv.Atoi(cmd[6])
	}

	var hits []scored
	for m, sc := range s.zsets[cmd[1]] {
		if min.admits(sc) && max.admitsMax(sc) {
			hits = append(hits, scored{member: m, score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			if rev {
				return hits[i].score > hits[j].score
			}
			return hits[i].score < hits[j].score
		}
		if rev {
			return hits[i].member > hits[j].member
		}
		return hits[i].member < hits[j].member
	})

	if offset > len(hits) {
		offset = len(hits)
	}
	hits = hits[offset:]
	if count >= 0 && count < len(hits) {
		hits = hits[:count]
	}

	out := make([]any, len(hits))
	for i, h := range hits {
		out[i] = []byte(h.member)
	}
	return out
}

// --------------------------------------------------------------------------
// Wire Codec
// --------------------------------------------------------------------------

// readCmd reads one client command: an array of bulk strings.
func readCmd(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("redistest: bad command header %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("redistest: bad command arity %q", line)
	}

	cmd := make([]string, n)
	for i := 0; i < n; i++ {
		hdr, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(hdr) == 0 || hdr[0] != '$' {
			return nil, fmt.Errorf("redistest: bad bulk header %q", hdr)
		}
		size, err := strconv.Atoi(hdr[1:])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("redistest: bad bulk size %q", hdr)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		cmd[i] = string(buf[:size])
	}
	return cmd, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeReply(w *bufio.Writer, v any) error {
	switch t := v.(type) {
	case status:
		_, err := fmt.Fprintf(w, "+%s\r\n", string(t))
		return err
	case respErr:
		_, err := fmt.Fprintf(w, "-%s\r\n", string(t))
		return err
	case int64:
		_, err := fmt.Fprintf(w, ":%d\r\n", t)
		return err
	case []byte:
		if _, err := fmt.Fprintf(w, "$%d\r\n", len(t)); err != nil {
			return err
		}
		if _, err := w.Write(t); err != nil {
			return err
		}
		_, err := w.WriteString("\r\n")
		return err
	case nil:
		_, err := w.WriteString("$-1\r\n")
		return err
	case []any:
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(t)); err != nil {
			return err
		}
		for _, e := range t {
			if err := writeReply(w, e); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("redistest: cannot encode reply %T", v)
}
