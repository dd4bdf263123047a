package wire

import (
	"bufio"
	"io"
	"strconv"
)

// Frame type markers of the reply protocol.
const (
	markStatus  byte = '+'
	markError   byte = '-'
	markInteger byte = ':'
	markBulk    byte = '$'
	markArray   byte = '*'
)

var crlf = []byte{'\r', '\n'}

// --------------------------------------------------------------------------
// Reply
// --------------------------------------------------------------------------

// Reply is one decoded protocol frame.
type Reply struct {
	kind   byte
	status string  // markStatus
	errMsg string  // markError
	n      int64   // markInteger
	bulk   []byte  // markBulk, nil when absent
	null   bool    // bulk or array was the null frame
	arr    []Reply // markArray
}

// IsNil reports whether the frame was a null bulk or null array.
func (r Reply) IsNil() bool { return r.null }

// Status returns the simple-status payload ("OK", "QUEUED", "PONG", ...).
func (r Reply) Status() string { return r.status }

// Int returns the integer payload.
func (r Reply) Int() int64 { return r.n }

// Bytes returns the opaque-bytes payload and whether it was present.
func (r Reply) Bytes() ([]byte, bool) { return r.bulk, r.kind == markBulk && !r.null }

// Str returns the opaque-bytes payload as a string ("" when absent).
func (r Reply) Str() string { return string(r.bulk) }

// Arr returns the array elements (nil for the null array).
func (r Reply) Arr() []Reply { return r.arr }

// Err returns a *RemoteError when the frame was an error reply, else nil.
func (r Reply) Err() error {
	if r.kind == markError {
		return &RemoteError{Msg: r.errMsg}
	}
	return nil
}

// Strs flattens an array of bulk frames into strings.
func (r Reply) Strs() []string {
	out := make([]string, 0, len(r.arr))
	for _, e := range r.arr {
		out = append(out, string(e.bulk))
	}
	return out
}

// Hash interprets an array of alternating field/value bulks as a hash.
func (r Reply) Hash() map[string][]byte {
	out := make(map[string][]byte, len(r.arr)/2)
	for i := 0; i+1 < len(r.arr); i += 2 {
		out[string(r.arr[i].bulk)] = r.arr[i+1].bulk
	}
	return out
}

// --------------------------------------------------------------------------
// Frame Reading
// --------------------------------------------------------------------------

// readReply decodes exactly one frame from the stream.
func readReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, &ProtocolError{Msg: "empty frame"}
	}

	mark, payload := line[0], line[1:]
	switch mark {
	case markStatus:
		return Reply{kind: mark, status: string(payload)}, nil

	case markError:
		return Reply{kind: mark, errMsg: string(payload)}, nil

	case markInteger:
		n, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return Reply{}, &ProtocolError{Msg: "malformed integer " + string(payload)}
		}
		return Reply{kind: mark, n: n}, nil

	case markBulk:
		size, err := strconv.Atoi(string(payload))
		if err != nil {
			return Reply{}, &ProtocolError{Msg: "malformed bulk length " + string(payload)}
		}
		if size < 0 {
			return Reply{kind: mark, null: true}, nil
		}
		// Loop until the declared length is consumed; the trailing frame
		// separator is not part of the payload.
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return Reply{}, err
		}
		if err := discardCRLF(r); err != nil {
			return Reply{}, err
		}
		return Reply{kind: mark, bulk: data}, nil

	case markArray:
		count, err := strconv.Atoi(string(payload))
		if err != nil {
			return Reply{}, &ProtocolError{Msg: "malformed array length " + string(payload)}
		}
		if count < 0 {
			return Reply{kind: mark, null: true}, nil
		}
		arr := make([]Reply, count)
		for i := 0; i < count; i++ {
			arr[i], err = readReply(r)
			if err != nil {
				return Reply{}, err
			}
		}
		return Reply{kind: mark, arr: arr}, nil

	default:
		return Reply{}, &ProtocolError{Msg: "unknown frame marker " + string(mark)}
	}
}

// readLine reads one CRLF-terminated line, without the terminator.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, &ProtocolError{Msg: "missing frame separator"}
	}
	return line[:len(line)-2], nil
}

func discardCRLF(r *bufio.Reader) error {
	for i := 0; i < 2; i++ {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Frame Writing
// --------------------------------------------------------------------------

// writeCmd encodes a request as an array of opaque-bytes frames.
func writeCmd(w *bufio.Writer, args [][]byte) error {
	if err := writeHeader(w, markArray, len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if err := writeHeader(w, markBulk, len(a)); err != nil {
			return err
		}
		if _, err := w.Write(a); err != nil {
			return err
		}
		if _, err := w.Write(crlf); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w *bufio.Writer, mark byte, n int) error {
	if err := w.WriteByte(mark); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(n)); err != nil {
		return err
	}
	_, err := w.Write(crlf)
	return err
}
