package folio

import (
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/foliodb/foliodb/folio/internal"
	"github.com/foliodb/foliodb/lib/filter"
	"github.com/foliodb/foliodb/lib/haystack"
	"github.com/foliodb/foliodb/lib/trio"
	"github.com/foliodb/foliodb/redis/pool"
	"github.com/foliodb/foliodb/redis/wire"
)

var flog = logger.GetLogger("folio")

var (
	commitsTotal          = metrics.NewCounter("foliodb_commits_total")
	commitErrorsTotal     = metrics.NewCounter("foliodb_commit_errors_total")
	concurrentChangeTotal = metrics.NewCounter("foliodb_concurrent_change_total")
	loadFailuresTotal     = metrics.NewCounter("foliodb_load_failures_total")
)

// cacheRecs is summed over every open store in the process.
var cacheRecs atomic.Int64

var _ = metrics.NewGauge("foliodb_cache_recs", func() float64 {
	return float64(cacheRecs.Load())
})

// startup pipeline batch for bulk record reads
const loadBatchSize = 128

// Folio is the record store engine. All methods are safe for concurrent
// use; reads are lock-free, writes funnel through one write goroutine.
type Folio struct {
	cfg  Config
	ser  trio.ITrioSerializer
	pool *pool.Pool

	// cache and interning; only the write goroutine mutates the cache
	// (plus the documented transient-tag escape hatch)
	cache    *xsync.MapOf[string, *haystack.Dict]
	interned *xsync.MapOf[string, *haystack.Ref]
	idx      *tagIndex
	ver      atomic.Uint64

	mbox   *internal.Mailbox[commitBatch]
	done   chan struct{}
	closed atomic.Bool
}

// Open connects to the store, loads every record into the cache and starts
// the write goroutine.
func Open(cfg Config) (*Folio, error) {
	cfg = cfg.withDefaults()

	addr, dial, err := parseEndpoint(cfg.Endpoint, cfg)
	if err != nil {
		return nil, err
	}

	f := &Folio{
		cfg:      cfg,
		ser:      trio.NewTrioSerializer(),
		pool:     pool.New(addr, dial, cfg.PoolSize),
		cache:    xsync.NewMapOf[string, *haystack.Dict](),
		interned: xsync.NewMapOf[string, *haystack.Ref](),
		idx:      newTagIndex(),
		mbox:     internal.NewMailbox[commitBatch](),
		done:     make(chan struct{}),
	}

	if err := f.pool.WithConn(f.load); err != nil {
		f.pool.Close()
		return nil, err
	}

	f.RefreshDis()
	go f.writeLoop()

	flog.Infof("opened %s at %s: %d recs, version %d",
		cfg.Name, addr, f.cache.Size(), f.ver.Load())
	return f, nil
}

// Close drains the write mailbox and closes the connection pool. Commits
// submitted after Close fail.
func (f *Folio) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.mbox.Close()
	<-f.done
	f.pool.Close()
	cacheRecs.Add(-int64(f.cache.Size()))
	return nil
}

// Config returns the opened configuration (with defaults applied).
func (f *Folio) Config() Config { return f.cfg }

// Pool exposes the shared connection pool to collaborators such as the
// history store.
func (f *Folio) Pool() *pool.Pool { return f.pool }

// Serializer exposes the record codec.
func (f *Folio) Serializer() trio.ITrioSerializer { return f.ser }

// CurVer returns the version counter. It increments by exactly one per
// commit batch containing at least one non-transient diff.
func (f *Folio) CurVer() uint64 { return f.ver.Load() }

// --------------------------------------------------------------------------
// Startup Load
// --------------------------------------------------------------------------

// load reads the version counter and every record into the cache. Records
// that fail to decode are counted and dropped for this session; they stay
// untouched in storage.
func (f *Folio) load(c *wire.Client) error {
	verBytes, ok, err := c.Get(KeyVersion)
	if err != nil {
		return err
	}
	f.ver.Store(1)
	if ok {
		if v, err := strconv.ParseUint(string(verBytes), 10, 64); err == nil && v >= 1 {
			f.ver.Store(v)
		}
	}

	ids, err := c.SMembers(KeyAll)
	if err != nil {
		return err
	}

	failures := 0
	for start := 0; start < len(ids); start += loadBatchSize {
		batch := ids[start:min(start+loadBatchSize, len(ids))]
		replies, err := c.Pipeline(func() error {
			for _, id := range batch {
				if _, err := c.HGetAll(RecKey(id)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, r := range replies {
			id := batch[i]
			if r.Err() != nil {
				failures++
				flog.Warningf("load %s failed: %v", id, r.Err())
				continue
			}
			enc, ok := r.Hash()[recFieldTrio]
			if !ok {
				failures++
				flog.Warningf("load %s failed: missing %s field", id, recFieldTrio)
				continue
			}
			rec, err := f.ser.Deserialize(enc)
			if err != nil {
				failures++
				flog.Warningf("load %s failed: %v", id, err)
				continue
			}
			rec = f.normalizeDict(rec)
			f.cache.Store(id, rec)
			f.idx.add(id, rec)
			cacheRecs.Add(1)
		}
	}
	if failures > 0 {
		loadFailuresTotal.Add(failures)
		flog.Warningf("%d recs dropped from cache for this session", failures)
	}
	return nil
}

// --------------------------------------------------------------------------
// Ref Interning
// --------------------------------------------------------------------------

// InternRef returns the canonical ref for an id, creating it if absent.
// The store guarantees one Ref instance per id across its lifetime. When an
// id prefix is configured, relative ids are absolutized first.
func (f *Folio) InternRef(r *haystack.Ref) *haystack.Ref {
	id := r.ID()
	if f.cfg.IDPrefix != "" && !strings.Contains(id, ":") {
		id = f.cfg.IDPrefix + id
		r = haystack.NewRef(id)
	}
	canon, _ := f.interned.LoadOrStore(id, r)
	return canon
}

// normalizeVal rewrites every nested ref through InternRef.
func (f *Folio) normalizeVal(v haystack.Val) haystack.Val {
	switch t := v.(type) {
	case *haystack.Ref:
		return f.InternRef(t)
	case *haystack.Dict:
		return f.normalizeDict(t)
	case haystack.List:
		out := make(haystack.List, len(t))
		for i, e := range t {
			out[i] = f.normalizeVal(e)
		}
		return out
	default:
		return v
	}
}

func (f *Folio) normalizeDict(d *haystack.Dict) *haystack.Dict {
	b := haystack.NewDictBuilder()
	d.Each(func(name string, val haystack.Val) {
		b.Set(name, f.normalizeVal(val))
	})
	return b.ToDict()
}

// --------------------------------------------------------------------------
// Read Path
// --------------------------------------------------------------------------

// ReadOpts tune the read operations.
type ReadOpts struct {
	// Limit caps the result count (default 10,000).
	Limit int
	// Trash includes soft-deleted records.
	Trash bool
	// Sort orders results by display string (stable, case-insensitive,
	// locale-independent).
	Sort bool
}

// Rec returns the cached record for an id, including trashed records.
func (f *Folio) Rec(id *haystack.Ref) (*haystack.Dict, bool) {
	return f.cache.Load(f.InternRef(id).ID())
}

// ReadByID returns the record for an id, or UnknownRecError when the id is
// absent or the record is trashed.
func (f *Folio) ReadByID(id *haystack.Ref) (*haystack.Dict, error) {
	rec, ok := f.Rec(id)
	if !ok || rec.IsTrash() {
		return nil, &UnknownRecError{ID: id.ID()}
	}
	return rec, nil
}

// ReadByIDs is the batched variant. The result list parallels ids with nil
// entries for unresolved ids; the error reports the first unresolved id.
func (f *Folio) ReadByIDs(ids []*haystack.Ref) ([]*haystack.Dict, error) {
	recs := make([]*haystack.Dict, len(ids))
	var firstErr error
	for i, id := range ids {
		rec, err := f.ReadByID(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recs[i] = rec
	}
	return recs, firstErr
}

// ReadAll returns every record matching the filter.
func (f *Folio) ReadAll(fl filter.Filter, opts ReadOpts) []*haystack.Dict {
	var recs []*haystack.Dict
	f.scan(fl, opts, func(rec *haystack.Dict) bool {
		recs = append(recs, rec)
		return true
	})
	if opts.Sort {
		col := collate.New(language.Und, collate.IgnoreCase)
		sort.SliceStable(recs, func(i, j int) bool {
			return col.CompareString(recs[i].Dis(), recs[j].Dis()) < 0
		})
	}
	return recs
}

// ReadCount returns the number of records matching the filter.
func (f *Folio) ReadCount(fl filter.Filter, opts ReadOpts) int {
	n := 0
	f.scan(fl, opts, func(*haystack.Dict) bool {
		n++
		return true
	})
	return n
}

// ReadAllEachWhile streams matching records to each until it returns false.
func (f *Folio) ReadAllEachWhile(fl filter.Filter, opts ReadOpts, each func(rec *haystack.Dict) bool) {
	f.scan(fl, opts, each)
}

// scan iterates candidate records from the query planner and applies the
// filter, trash suppression and limit.
//
// The planner: a predicate whose surface form is a single identifier is
// answered from the tag index; everything else is a full cache scan
// (compound predicates are not intersected across indexes).
func (f *Folio) scan(fl filter.Filter, opts ReadOpts, fn func(rec *haystack.Dict) bool) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	count := 0
	visit := func(rec *haystack.Dict) bool {
		if rec == nil {
			return true
		}
		if rec.IsTrash() && !opts.Trash {
			return true
		}
		if !fl.Matches(rec) {
			return true
		}
		count++
		if !fn(rec) {
			return false
		}
		return count < limit
	}

	// id/mod and the never-tags have no index entries; they scan fully
	if name, ok := filter.SimpleTagName(fl); ok && indexable(name) {
		ids := f.idx.ids(name)
		if ids == nil {
			return
		}
		ids.Range(func(id string, _ struct{}) bool {
			rec, _ := f.cache.Load(id)
			return visit(rec)
		})
		return
	}

	f.cache.Range(func(_ string, rec *haystack.Dict) bool {
		return visit(rec)
	})
}

// --------------------------------------------------------------------------
// Transient Tag Patching
// --------------------------------------------------------------------------

// PatchTransient replaces history summary tags directly in the cached
// record, outside of diff semantics: no mod advance, no persistence, no
// version advance. Only the transient never-tags are legal here; it exists
// as the escape hatch for the history store's summary maintenance.
//
// The patch is an atomic per-key read-modify-write: callers run on
// arbitrary goroutines concurrently with the write goroutine, and a commit
// landing between a plain load and store here would be clobbered back to
// its pre-commit record.
func (f *Folio) PatchTransient(id *haystack.Ref, tags *haystack.Dict) error {
	var err error
	tags.EachWhile(func(name string, _ haystack.Val) bool {
		if !haystack.IsNeverTag(name) {
			err = &CommitError{Msg: "not a transient tag: " + name}
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	key := f.InternRef(id).ID()
	patched := false
	f.cache.Compute(key, func(rec *haystack.Dict, loaded bool) (*haystack.Dict, bool) {
		if !loaded {
			return nil, true
		}
		b := rec.Dup()
		tags.Each(func(name string, val haystack.Val) {
			if val.Kind() == haystack.KindRemove {
				b.Delete(name)
			} else {
				b.Set(name, val)
			}
		})
		patched = true
		return b.ToDict(), false
	})
	if !patched {
		return &UnknownRecError{ID: key}
	}
	return nil
}

// FirePostHisWrite dispatches the post-history-write hook; errors are
// logged and swallowed.
func (f *Folio) FirePostHisWrite(ev HisWriteEvent) {
	if f.cfg.Hooks.PostHisWrite == nil {
		return
	}
	if err := f.cfg.Hooks.PostHisWrite(ev); err != nil {
		flog.Errorf("postHisWrite hook failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Unsupported Surfaces
// --------------------------------------------------------------------------

// Backup is not supported by the Redis engine.
func (f *Folio) Backup(dir string) error {
	return &UnsupportedError{Op: "backup"}
}

// RenameIndexPrefix is not supported by the Redis engine.
func (f *Folio) RenameIndexPrefix(oldPrefix, newPrefix string) error {
	return &UnsupportedError{Op: "index prefix rename"}
}
