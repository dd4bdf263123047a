package trio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/foliodb/foliodb/lib/haystack"
)

// NewTrioSerializer creates a serializer using the textual trio encoding.
func NewTrioSerializer() ITrioSerializer {
	return &trioSerializerImpl{}
}

// trioSerializerImpl implements the ITrioSerializer interface using the
// line-oriented textual trio format.
type trioSerializerImpl struct{}

const indentStep = "  "

// --------------------------------------------------------------------------
// Interface Methods (docu see trio.ITrioSerializer)
// --------------------------------------------------------------------------

func (t *trioSerializerImpl) Serialize(d *haystack.Dict) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDict(&buf, d, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *trioSerializerImpl) Deserialize(b []byte) (*haystack.Dict, error) {
	p := &parser{lines: splitLines(b)}
	d, err := p.parseDict(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		return nil, &EncodingError{Line: p.lines[p.pos].num, Msg: "unexpected indent"}
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func writeDict(buf *bytes.Buffer, d *haystack.Dict, indent int) error {
	var err error
	d.EachWhile(func(name string, val haystack.Val) bool {
		err = writeTag(buf, name, val, indent)
		return err == nil
	})
	return err
}

func writeTag(buf *bytes.Buffer, name string, val haystack.Val, indent int) error {
	if !validName(name) {
		return &EncodingError{Msg: fmt.Sprintf("invalid tag name %q", name)}
	}
	pad := strings.Repeat(indentStep, indent)
	switch v := val.(type) {
	case haystack.Marker:
		buf.WriteString(pad + name + "\n")
	case *haystack.Dict:
		buf.WriteString(pad + name + ": dict\n")
		return writeDict(buf, v, indent+1)
	case haystack.List:
		buf.WriteString(pad + name + ": list\n")
		return writeList(buf, v, indent+1)
	default:
		s, err := scalarStr(val)
		if err != nil {
			return err
		}
		buf.WriteString(pad + name + ": " + s + "\n")
	}
	return nil
}

func writeList(buf *bytes.Buffer, l haystack.List, indent int) error {
	pad := strings.Repeat(indentStep, indent)
	for _, v := range l {
		switch item := v.(type) {
		case *haystack.Dict:
			buf.WriteString(pad + "- dict\n")
			if err := writeDict(buf, item, indent+1); err != nil {
				return err
			}
		case haystack.List:
			buf.WriteString(pad + "- list\n")
			if err := writeList(buf, item, indent+1); err != nil {
				return err
			}
		default:
			s, err := scalarStr(v)
			if err != nil {
				return err
			}
			buf.WriteString(pad + "- " + s + "\n")
		}
	}
	return nil
}

func scalarStr(val haystack.Val) (string, error) {
	switch v := val.(type) {
	case haystack.Marker:
		return "m", nil
	case haystack.Remove:
		return "rm", nil
	case haystack.Bool:
		return "b " + strconv.FormatBool(bool(v)), nil
	case haystack.Number:
		s := "n " + strconv.FormatFloat(v.Val, 'g', -1, 64)
		if v.Unit != "" {
			s += " " + v.Unit
		}
		return s, nil
	case haystack.Str:
		return "s " + strconv.Quote(string(v)), nil
	case haystack.Uri:
		return "u " + strconv.Quote(string(v)), nil
	case *haystack.Ref:
		return "r " + strconv.Quote(v.ID()), nil
	case haystack.Date:
		return fmt.Sprintf("d %04d-%02d-%02d", v.Year, int(v.Month), v.Day), nil
	case haystack.Time:
		return fmt.Sprintf("t %02d:%02d:%02d.%03d", v.Hour, v.Min, v.Sec, v.Ms), nil
	case haystack.DateTime:
		return fmt.Sprintf("ts %d %s", v.UnixMilli(), v.TZ()), nil
	case haystack.Coord:
		return "c " + strconv.FormatFloat(v.Lat, 'f', -1, 64) + "," +
			strconv.FormatFloat(v.Lng, 'f', -1, 64), nil
	case haystack.Bin:
		if len(v) == 0 {
			return "bin", nil
		}
		return "bin " + base64.StdEncoding.EncodeToString(v), nil
	default:
		return "", &EncodingError{Msg: fmt.Sprintf("unsupported value kind %s", val.Kind())}
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

type line struct {
	num    int // 1-based source line
	indent int
	text   string // trimmed payload
}

func splitLines(b []byte) []line {
	var out []line
	for i, raw := range strings.Split(string(b), "\n") {
		text := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimLeft(text, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		out = append(out, line{
			num:    i + 1,
			indent: (len(text) - len(trimmed)) / len(indentStep),
			text:   trimmed,
		})
	}
	return out
}

type parser struct {
	lines []line
	pos   int
}

// parseDict consumes lines at exactly the given indent level.
func (p *parser) parseDict(indent int) (*haystack.Dict, error) {
	b := haystack.NewDictBuilder()
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.indent < indent {
			break
		}
		if ln.indent > indent {
			return nil, &EncodingError{Line: ln.num, Msg: "unexpected indent"}
		}
		p.pos++

		name, rest, hasVal := strings.Cut(ln.text, ":")
		name = strings.TrimSpace(name)
		if !validName(name) {
			return nil, &EncodingError{Line: ln.num, Msg: fmt.Sprintf("invalid tag name %q", name)}
		}
		if b.Has(name) {
			return nil, &EncodingError{Line: ln.num, Msg: fmt.Sprintf("duplicate tag %q", name)}
		}
		if !hasVal {
			b.SetMarker(name)
			continue
		}
		val, err := p.parseVal(strings.TrimSpace(rest), ln, indent)
		if err != nil {
			return nil, err
		}
		b.Set(name, val)
	}
	return b.ToDict(), nil
}

func (p *parser) parseList(indent int) (haystack.List, error) {
	l := haystack.List{}
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.indent < indent {
			break
		}
		if ln.indent > indent || !strings.HasPrefix(ln.text, "-") {
			return nil, &EncodingError{Line: ln.num, Msg: "malformed list item"}
		}
		p.pos++
		val, err := p.parseVal(strings.TrimSpace(ln.text[1:]), ln, indent)
		if err != nil {
			return nil, err
		}
		l = append(l, val)
	}
	return l, nil
}

// parseVal decodes a scalar payload or recurses for dict/list continuations.
func (p *parser) parseVal(s string, ln line, indent int) (haystack.Val, error) {
	switch s {
	case "dict":
		return p.parseDict(indent + 1)
	case "list":
		return p.parseList(indent + 1)
	}
	return parseScalar(s, ln)
}

func parseScalar(s string, ln line) (haystack.Val, error) {
	kind, payload, _ := strings.Cut(s, " ")
	fail := func(msg string) (haystack.Val, error) {
		return nil, &EncodingError{Line: ln.num, Msg: msg}
	}

	switch kind {
	case "m":
		return haystack.M, nil
	case "rm":
		return haystack.Rm, nil
	case "b":
		v, err := strconv.ParseBool(payload)
		if err != nil {
			return fail("malformed bool " + payload)
		}
		return haystack.Bool(v), nil
	case "n":
		num, unit, _ := strings.Cut(payload, " ")
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return fail("malformed number " + payload)
		}
		return haystack.Number{Val: v, Unit: unit}, nil
	case "s", "u":
		v, err := strconv.Unquote(payload)
		if err != nil {
			return fail("malformed string " + payload)
		}
		if kind == "u" {
			return haystack.Uri(v), nil
		}
		return haystack.Str(v), nil
	case "r":
		id, err := strconv.Unquote(payload)
		if err != nil {
			return fail("malformed ref " + payload)
		}
		return haystack.NewRef(id), nil
	case "d":
		t, err := time.Parse("2006-01-02", payload)
		if err != nil {
			return fail("malformed date " + payload)
		}
		return haystack.Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	case "t":
		t, err := time.Parse("15:04:05.000", payload)
		if err != nil {
			return fail("malformed time " + payload)
		}
		return haystack.Time{
			Hour: t.Hour(), Min: t.Minute(), Sec: t.Second(),
			Ms: t.Nanosecond() / int(time.Millisecond),
		}, nil
	case "ts":
		msStr, tz, ok := strings.Cut(payload, " ")
		if !ok {
			return fail("malformed datetime " + payload)
		}
		ms, err := strconv.ParseInt(msStr, 10, 64)
		if err != nil {
			return fail("malformed datetime " + payload)
		}
		return haystack.FromUnixMilli(ms, tz), nil
	case "c":
		latStr, lngStr, ok := strings.Cut(payload, ",")
		if !ok {
			return fail("malformed coord " + payload)
		}
		lat, err1 := strconv.ParseFloat(latStr, 64)
		lng, err2 := strconv.ParseFloat(lngStr, 64)
		if err1 != nil || err2 != nil {
			return fail("malformed coord " + payload)
		}
		return haystack.Coord{Lat: lat, Lng: lng}, nil
	case "bin":
		if payload == "" {
			return haystack.Bin{}, nil
		}
		v, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fail("malformed bin payload")
		}
		return haystack.Bin(v), nil
	default:
		return fail(fmt.Sprintf("unknown value kind %q", kind))
	}
}
