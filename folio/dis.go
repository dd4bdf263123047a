package folio

import (
	"fmt"
	"strings"

	"github.com/foliodb/foliodb/lib/haystack"
)

// --------------------------------------------------------------------------
// Display Resolution
// --------------------------------------------------------------------------

// RefreshDis recomputes the display string of every record and patches it
// into the interned ref's display slot. One pass shares a memo so chains of
// disMacro references resolve each record once.
//
// Runs on whatever goroutine calls it; the ref display slot is the only
// state it mutates, and that slot is atomic.
func (f *Folio) RefreshDis() {
	memo := map[string]string{}
	f.cache.Range(func(id string, rec *haystack.Dict) bool {
		f.resolveDis(id, rec, memo)
		return true
	})
}

// resolveDis returns the display string for one record, memoized. The memo
// is seeded with the raw id before descending into disMacro refs, so a
// cyclic macro chain resolves to the id instead of recursing forever.
func (f *Folio) resolveDis(id string, rec *haystack.Dict, memo map[string]string) string {
	if dis, ok := memo[id]; ok {
		return dis
	}
	memo[id] = id
	dis := f.computeDis(rec, memo)
	memo[id] = dis
	if r := rec.ID(); r != nil {
		r.SetDis(dis)
	}
	return dis
}

// computeDis picks the display source: disMacro expansion, then the dis
// string, then the name string, then the id itself.
func (f *Folio) computeDis(rec *haystack.Dict, memo map[string]string) string {
	if macro := rec.Str("disMacro"); macro != "" {
		return f.expandMacro(macro, rec, memo)
	}
	if s := rec.Str("dis"); s != "" {
		return s
	}
	if s := rec.Str("name"); s != "" {
		return s
	}
	if r := rec.ID(); r != nil {
		return r.ID()
	}
	return ""
}

// expandMacro substitutes $name and ${name} tokens in a disMacro pattern
// with the display of the named tag. A lone or malformed dollar passes
// through verbatim.
func (f *Folio) expandMacro(macro string, rec *haystack.Dict, memo map[string]string) string {
	var sb strings.Builder
	i := 0
	for i < len(macro) {
		c := macro[i]
		if c != '$' || i+1 >= len(macro) {
			sb.WriteByte(c)
			i++
			continue
		}

		var name string
		if macro[i+1] == '{' {
			end := strings.IndexByte(macro[i+2:], '}')
			if end < 0 {
				sb.WriteByte(c)
				i++
				continue
			}
			name = macro[i+2 : i+2+end]
			i += 2 + end + 1
		} else {
			j := i + 1
			for j < len(macro) && isMacroNameChar(macro[j]) {
				j++
			}
			if j == i+1 {
				sb.WriteByte(c)
				i++
				continue
			}
			name = macro[i+1 : j]
			i = j
		}
		sb.WriteString(f.macroVal(name, rec, memo))
	}
	return sb.String()
}

// macroVal renders one macro tag: refs resolve through the target record's
// own display, strings render verbatim, everything else via its string
// form. An absent tag keeps the token so broken macros stay visible.
func (f *Folio) macroVal(name string, rec *haystack.Dict, memo map[string]string) string {
	v, ok := rec.Get(name)
	if !ok {
		return "$" + name
	}
	switch t := v.(type) {
	case *haystack.Ref:
		if target, ok := f.cache.Load(t.ID()); ok {
			return f.resolveDis(t.ID(), target, memo)
		}
		return t.Dis()
	case haystack.Str:
		return string(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isMacroNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_'
}
