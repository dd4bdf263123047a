package his

import (
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/lib/filter"
	"github.com/foliodb/foliodb/lib/haystack"
	"github.com/foliodb/foliodb/redis/wire"
)

var hlog = logger.GetLogger("folio/his")

var (
	itemsReadTotal    = metrics.NewCounter("foliodb_his_items_read_total")
	itemsWrittenTotal = metrics.NewCounter("foliodb_his_items_written_total")
)

// item dict fields on the wire
const (
	itemTagTS  = "ts"
	itemTagVal = "val"
)

// Item is one timestamped sample. Timestamps are unique per record; a write
// at an existing timestamp overwrites the value.
type Item struct {
	TS  haystack.DateTime
	Val haystack.Val
}

// Span is a half-open time range [Start, End).
type Span struct {
	Start haystack.DateTime
	End   haystack.DateTime
}

// ReadOpts tune Read.
type ReadOpts struct {
	// Limit caps the number of emitted items (default 10,000).
	Limit int
	// ClipFuture skips items stamped after the current instant.
	ClipFuture bool
}

// WriteOpts tune Write.
type WriteOpts struct {
	// ClearAll deletes the whole series before writing.
	ClearAll bool
	// Clear deletes the span [Start, End) before writing.
	Clear *Span
}

// HisConfigError reports a history operation against a record that is not
// a readable historized point.
type HisConfigError struct {
	ID  string
	Msg string
}

func (e *HisConfigError) Error() string {
	return "his config error @" + e.ID + ": " + e.Msg
}

// Store is the history store bound to a record store. Methods may be called
// from any goroutine; each call borrows its own pool connection. Per-record
// ordering of concurrent writers is not guaranteed.
type Store struct {
	f *folio.Folio
}

// New creates the history store for a record store.
func New(f *folio.Folio) *Store {
	return &Store{f: f}
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

// Read emits items in ascending timestamp order until emit returns false.
//
// Without a span every item is emitted up to the limit, and the host
// record's transient summary tags are refreshed in the cache afterwards,
// expressed in the host's current time zone. With a span the emission is
// the single latest item before Start, every item in [Start, End), and up
// to two items at or after End.
//
// Per item, the timestamp is converted to the host's time zone and a
// unitless number value picks up the host's unit tag.
func (s *Store) Read(id *haystack.Ref, span *Span, opts ReadOpts, emit func(Item) bool) error {
	rec, err := s.hostRec(id)
	if err != nil {
		return err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = folio.DefaultReadLimit
	}
	tz := hostTZ(rec)
	unit := rec.Str("unit")
	key := folio.HisKey(rec.ID().ID())

	return s.f.Pool().WithConn(func(c *wire.Client) error {
		var members [][]byte
		if span == nil {
			max := "+inf"
			if opts.ClipFuture {
				max = score(haystack.Now().UnixMilli())
			}
			members, err = c.ZRangeByScore(key, "-inf", max, limit)
			if err != nil {
				return err
			}
		} else {
			members, err = s.spanMembers(c, key, span, limit)
			if err != nil {
				return err
			}
		}

		for _, m := range members {
			it, err := s.decodeItem(m)
			if err != nil {
				return err
			}
			it.TS = it.TS.In(tz)
			if n, ok := it.Val.(haystack.Number); ok && !n.HasUnit() && unit != "" {
				it.Val = n.WithUnit(unit)
			}
			itemsReadTotal.Inc()
			if !emit(it) {
				break
			}
		}

		// the summary is recomputed from the full series, so it refreshes
		// even when emit stopped the iteration early
		if span == nil {
			return s.refreshSummary(c, rec.ID(), key, tz)
		}
		return nil
	})
}

// spanMembers collects the raw members for a span read: prev-1, the window
// [Start, End), then next-2.
func (s *Store) spanMembers(c *wire.Client, key string, span *Span, limit int) ([][]byte, error) {
	lo := score(span.Start.UnixMilli())
	hi := score(span.End.UnixMilli())

	prev, err := c.ZRevRangeByScore(key, "("+lo, "-inf", 1)
	if err != nil {
		return nil, err
	}
	window, err := c.ZRangeByScore(key, lo, "("+hi, limit)
	if err != nil {
		return nil, err
	}
	next, err := c.ZRangeByScore(key, hi, "+inf", 2)
	if err != nil {
		return nil, err
	}

	members := make([][]byte, 0, len(prev)+len(window)+len(next))
	members = append(members, prev...)
	members = append(members, window...)
	members = append(members, next...)
	return members, nil
}

// --------------------------------------------------------------------------
// Write
// --------------------------------------------------------------------------

// Write appends or overwrites items and returns the number of items written
// or deleted. Writes are best-effort per item with last-write-wins on
// timestamp collision; they are not transactional with commits. After the
// write the host's summary tags are refreshed and the post-history-write
// hook fires.
func (s *Store) Write(id *haystack.Ref, items []Item, opts WriteOpts, cx any) (int, error) {
	rec, err := s.hostRec(id)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := filter.HisWriteCheck(rec, it.Val); err != nil {
			return 0, &HisConfigError{ID: rec.ID().ID(), Msg: err.Error()}
		}
	}

	key := folio.HisKey(rec.ID().ID())
	tz := hostTZ(rec)
	count := 0
	var start, end haystack.DateTime

	err = s.f.Pool().WithConn(func(c *wire.Client) error {
		if opts.ClearAll {
			if _, err := c.Del(key); err != nil {
				return err
			}
		}
		if opts.Clear != nil {
			lo := score(opts.Clear.Start.UnixMilli())
			hi := score(opts.Clear.End.UnixMilli() - 1)
			if _, err := c.ZRemRangeByScore(key, lo, hi); err != nil {
				return err
			}
		}

		for _, it := range items {
			ms := it.TS.UnixMilli()
			at := score(ms)

			if it.Val.Kind() == haystack.KindRemove {
				n, err := c.ZRemRangeByScore(key, at, at)
				if err != nil {
					return err
				}
				count += int(n)
				continue
			}

			// overwrite at the same timestamp by deleting first
			if _, err := c.ZRemRangeByScore(key, at, at); err != nil {
				return err
			}
			enc, err := s.encodeItem(it)
			if err != nil {
				return err
			}
			if _, err := c.ZAdd(key, ms, enc); err != nil {
				return err
			}
			count++
			if start.IsZero() || it.TS.Before(start) {
				start = it.TS
			}
			if end.IsZero() || it.TS.After(end) {
				end = it.TS
			}
		}

		return s.refreshSummary(c, rec.ID(), key, tz)
	})
	if err != nil {
		return count, err
	}

	itemsWrittenTotal.Add(count)
	hlog.Debugf("his write @%s: %d items", rec.ID().ID(), count)
	if fresh, ok := s.f.Rec(id); ok {
		// carry the refreshed summary tags into the event
		rec = fresh
	}
	s.f.FirePostHisWrite(folio.HisWriteEvent{
		Rec:    rec,
		Count:  count,
		Start:  start,
		End:    end,
		CxInfo: cx,
	})
	return count, nil
}

// --------------------------------------------------------------------------
// Host Record and Summary Tags
// --------------------------------------------------------------------------

// hostRec resolves and validates the host record: it must be cached, a
// point with his, not aux and not trashed.
func (s *Store) hostRec(id *haystack.Ref) (*haystack.Dict, error) {
	rec, ok := s.f.Rec(id)
	if !ok {
		return nil, &folio.UnknownRecError{ID: id.ID()}
	}
	rid := rec.ID().ID()
	switch {
	case !rec.Has("point") || !rec.Has("his"):
		return nil, &HisConfigError{ID: rid, Msg: "rec is not a historized point"}
	case rec.Has("aux"):
		return nil, &HisConfigError{ID: rid, Msg: "rec is an aux point"}
	case rec.IsTrash():
		return nil, &HisConfigError{ID: rid, Msg: "rec is in trash"}
	}
	return rec, nil
}

// refreshSummary recomputes hisSize, hisStart(+Val) and hisEnd(+Val) from
// the full series and patches them into the cached host record. An empty
// series clears all five tags.
func (s *Store) refreshSummary(c *wire.Client, id *haystack.Ref, key, tz string) error {
	n, err := c.ZCard(key)
	if err != nil {
		return err
	}

	b := haystack.NewDictBuilder()
	if n == 0 {
		for _, name := range haystack.NeverTags {
			b.Set(name, haystack.Rm)
		}
		return s.f.PatchTransient(id, b.ToDict())
	}

	firstM, err := c.ZRangeByScore(key, "-inf", "+inf", 1)
	if err != nil {
		return err
	}
	lastM, err := c.ZRevRangeByScore(key, "+inf", "-inf", 1)
	if err != nil {
		return err
	}
	if len(firstM) == 0 || len(lastM) == 0 {
		return &wire.ProtocolError{Msg: "non-empty series returned no boundary items"}
	}
	first, err := s.decodeItem(firstM[0])
	if err != nil {
		return err
	}
	last, err := s.decodeItem(lastM[0])
	if err != nil {
		return err
	}

	b.Set("hisSize", haystack.Num(float64(n)))
	b.Set("hisStart", first.TS.In(tz))
	b.Set("hisStartVal", first.Val)
	b.Set("hisEnd", last.TS.In(tz))
	b.Set("hisEndVal", last.Val)
	return s.f.PatchTransient(id, b.ToDict())
}

// --------------------------------------------------------------------------
// Item Codec
// --------------------------------------------------------------------------

func (s *Store) encodeItem(it Item) ([]byte, error) {
	d := haystack.NewDictBuilder().
		Set(itemTagTS, it.TS).
		Set(itemTagVal, it.Val).
		ToDict()
	return s.f.Serializer().Serialize(d)
}

func (s *Store) decodeItem(enc []byte) (Item, error) {
	d, err := s.f.Serializer().Deserialize(enc)
	if err != nil {
		return Item{}, err
	}
	ts, ok := d.Get(itemTagTS)
	if !ok {
		return Item{}, &wire.ProtocolError{Msg: "his item missing ts"}
	}
	dt, ok := ts.(haystack.DateTime)
	if !ok {
		return Item{}, &wire.ProtocolError{Msg: "his item ts is not a date-time"}
	}
	val, _ := d.Get(itemTagVal)
	return Item{TS: dt, Val: val}, nil
}

// hostTZ returns the host's tz tag or UTC.
func hostTZ(rec *haystack.Dict) string {
	if tz := rec.Str("tz"); tz != "" {
		return tz
	}
	return "UTC"
}

func score(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
