package folio

import (
	"strconv"

	"github.com/foliodb/foliodb/lib/haystack"
	"github.com/foliodb/foliodb/redis/wire"
)

// CommitResult resolves an asynchronous commit: the new records (parallel
// to the submitted diffs, nil for removes) or the batch error.
type CommitResult struct {
	Recs []*haystack.Dict
	Err  error
}

// commitBatch is one mailbox message for the write goroutine.
type commitBatch struct {
	diffs []*Diff
	cx    any
	res   chan CommitResult
}

// prepared is one diff resolved against the cache on the write goroutine.
type prepared struct {
	diff   *Diff
	id     *haystack.Ref
	oldRec *haystack.Dict
	newRec *haystack.Dict // nil for removes
}

// --------------------------------------------------------------------------
// Commit API
// --------------------------------------------------------------------------

// Commit applies a single diff and returns the new record (nil for a
// remove). It blocks until the write goroutine has committed or failed.
func (f *Folio) Commit(diff *Diff, cx any) (*haystack.Dict, error) {
	recs, err := f.CommitAll([]*Diff{diff}, cx)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// CommitAll applies a batch of diffs atomically: either every diff is
// persisted and applied to the cache, or none is.
func (f *Folio) CommitAll(diffs []*Diff, cx any) ([]*haystack.Dict, error) {
	res := <-f.CommitAllAsync(diffs, cx)
	return res.Recs, res.Err
}

// CommitAllAsync enqueues a batch on the write mailbox and returns a future
// resolved when the batch has committed or failed. The enqueue itself never
// blocks on the wire.
func (f *Folio) CommitAllAsync(diffs []*Diff, cx any) <-chan CommitResult {
	res := make(chan CommitResult, 1)

	// context-free validation on the caller's goroutine
	if len(diffs) == 0 {
		res <- CommitResult{Err: &CommitError{Msg: "empty diff batch"}}
		return res
	}
	for _, d := range diffs {
		if err := d.check(); err != nil {
			res <- CommitResult{Err: err}
			return res
		}
	}

	if !f.mbox.Post(&commitBatch{diffs: diffs, cx: cx, res: res}) {
		res <- CommitResult{Err: &CommitError{Msg: "store closed"}}
	}
	return res
}

// writeLoop is the single consumer of the commit mailbox. Its queue order
// is the serialization order of all commits.
func (f *Folio) writeLoop() {
	defer close(f.done)
	for b := range f.mbox.C() {
		recs, err := f.processBatch(b)
		if err != nil {
			commitErrorsTotal.Inc()
		} else {
			commitsTotal.Inc()
		}
		b.res <- CommitResult{Recs: recs, Err: err}
	}
}

// --------------------------------------------------------------------------
// Commit Pipeline
// --------------------------------------------------------------------------

func (f *Folio) processBatch(b *commitBatch) ([]*haystack.Dict, error) {
	preps, allTransient, err := f.prepare(b.diffs)
	if err != nil {
		return nil, err
	}

	// pre-commit hooks may veto the whole batch before storage is touched
	if hook := f.cfg.Hooks.PreCommit; hook != nil {
		for _, p := range preps {
			if err := hook(CommitEvent{Diff: p.diff, OldRec: p.oldRec, CxInfo: b.cx}); err != nil {
				return nil, err
			}
		}
	}

	if !allTransient {
		if err := f.persist(preps); err != nil {
			return nil, err
		}
	}

	recs := f.apply(preps, allTransient)

	if hook := f.cfg.Hooks.PostCommit; hook != nil {
		for _, p := range preps {
			if err := hook(CommitEvent{Diff: p.diff, OldRec: p.oldRec, CxInfo: b.cx}); err != nil {
				flog.Errorf("postCommit hook failed for %v: %v", p.id, err)
			}
		}
	}
	return recs, nil
}

// prepare resolves every diff against the cache, runs the optimistic
// concurrency checks and materializes the new records.
func (f *Folio) prepare(diffs []*Diff) ([]prepared, bool, error) {
	now := haystack.Now()
	preps := make([]prepared, len(diffs))
	allTransient := true

	for i, d := range diffs {
		id := f.InternRef(d.ID)
		oldRec, ok := f.cache.Load(id.ID())

		switch {
		case d.IsAdd():
			if ok {
				return nil, false, &AlreadyExistsError{ID: id.ID()}
			}
		case !ok:
			if d.IsRemove() {
				return nil, false, &CommitError{Msg: "remove of nonexistent rec @" + id.ID()}
			}
			return nil, false, &UnknownRecError{ID: id.ID()}
		case !d.IsForce() && !oldRec.Mod().Same(d.OldMod):
			concurrentChangeTotal.Inc()
			return nil, false, &ConcurrentChangeError{ID: id.ID(), Msg: "rec modified"}
		}

		if !d.IsTransient() {
			allTransient = false
		}

		p := prepared{diff: d, id: id, oldRec: oldRec}
		if !d.IsRemove() {
			p.newRec = f.materialize(d, id, oldRec, now)
		}
		preps[i] = p
	}
	return preps, allTransient, nil
}

// materialize builds the new record from the old record and the change set.
// The new mod is max(now, oldMod+1ms) so the stamp stays monotone even
// under clock slip; transient diffs keep the old mod.
func (f *Folio) materialize(d *Diff, id *haystack.Ref, oldRec *haystack.Dict, now haystack.DateTime) *haystack.Dict {
	bld := haystack.NewDictBuilder()
	if oldRec != nil {
		bld = oldRec.Dup()
	}

	d.Changes.Each(func(name string, val haystack.Val) {
		if val.Kind() == haystack.KindRemove {
			bld.Delete(name)
		} else {
			bld.Set(name, f.normalizeVal(val))
		}
	})

	bld.Set(haystack.TagID, id)
	if !d.IsTransient() {
		newMod := now
		if oldRec != nil {
			if bumped := oldRec.Mod().AddMillis(1); !oldRec.Mod().IsZero() && newMod.Before(bumped) {
				newMod = bumped
			}
		}
		bld.Set(haystack.TagMod, newMod)
	}
	return bld.ToDict()
}

// persist writes every non-transient diff in one storage transaction: the
// primary hash, the all-records set, the tag indexes and the version
// counter move together or not at all.
func (f *Folio) persist(preps []prepared) error {
	return f.pool.WithConn(func(c *wire.Client) error {
		if err := c.Multi(); err != nil {
			return err
		}
		abort := func(err error) error {
			if derr := c.Discard(); derr != nil {
				flog.Warningf("discard after failed queue: %v", derr)
			}
			return err
		}

		for _, p := range preps {
			if p.diff.IsTransient() {
				continue
			}
			if p.diff.IsRemove() {
				if err := f.queueRemove(c, p); err != nil {
					return abort(err)
				}
			} else if err := f.queueUpsert(c, p); err != nil {
				return abort(err)
			}
		}

		next := strconv.FormatUint(f.ver.Load()+1, 10)
		if err := c.Set(KeyVersion, []byte(next)); err != nil {
			return abort(err)
		}

		_, ok, err := c.Exec()
		if err != nil {
			return err
		}
		if !ok {
			concurrentChangeTotal.Inc()
			return &ConcurrentChangeError{Msg: "storage transaction aborted"}
		}
		return nil
	})
}

func (f *Folio) queueRemove(c *wire.Client, p prepared) error {
	id := p.id.ID()
	if _, err := c.Del(RecKey(id)); err != nil {
		return err
	}
	if _, err := c.SRem(KeyAll, id); err != nil {
		return err
	}
	var qerr error
	p.oldRec.EachWhile(func(name string, _ haystack.Val) bool {
		if indexable(name) {
			_, qerr = c.SRem(TagKey(name), id)
		}
		return qerr == nil
	})
	return qerr
}

func (f *Folio) queueUpsert(c *wire.Client, p prepared) error {
	id := p.id.ID()
	enc, err := f.ser.Serialize(stripNeverTags(p.newRec))
	if err != nil {
		return err
	}
	if _, err := c.HSet(RecKey(id), recFieldTrio, enc); err != nil {
		return err
	}
	mod := strconv.FormatInt(p.newRec.Mod().UnixMilli(), 10)
	if _, err := c.HSet(RecKey(id), recFieldMod, []byte(mod)); err != nil {
		return err
	}
	if _, err := c.SAdd(KeyAll, id); err != nil {
		return err
	}

	var qerr error
	if p.oldRec != nil {
		p.oldRec.EachWhile(func(name string, _ haystack.Val) bool {
			if indexable(name) && !p.newRec.Has(name) {
				_, qerr = c.SRem(TagKey(name), id)
			}
			return qerr == nil
		})
		if qerr != nil {
			return qerr
		}
	}
	p.newRec.EachWhile(func(name string, _ haystack.Val) bool {
		if indexable(name) && (p.oldRec == nil || !p.oldRec.Has(name)) {
			_, qerr = c.SAdd(TagKey(name), id)
		}
		return qerr == nil
	})
	return qerr
}

// apply replaces the records in the cache and the in-memory indexes, then
// advances the version counter once for the whole batch.
func (f *Folio) apply(preps []prepared, allTransient bool) []*haystack.Dict {
	recs := make([]*haystack.Dict, len(preps))
	for i, p := range preps {
		id := p.id.ID()
		if p.diff.IsRemove() {
			f.cache.Delete(id)
			f.idx.remove(id, p.oldRec)
			cacheRecs.Add(-1)
			continue
		}
		f.cache.Store(id, p.newRec)
		if p.oldRec == nil {
			f.idx.add(id, p.newRec)
			cacheRecs.Add(1)
		} else {
			f.idx.update(id, p.oldRec, p.newRec)
		}
		recs[i] = p.newRec
	}
	if !allTransient {
		f.ver.Add(1)
	}
	return recs
}

// stripNeverTags drops the transient history summary tags before encoding;
// they live in the cache only.
func stripNeverTags(rec *haystack.Dict) *haystack.Dict {
	strip := false
	for _, n := range haystack.NeverTags {
		if rec.Has(n) {
			strip = true
			break
		}
	}
	if !strip {
		return rec
	}
	b := rec.Dup()
	for _, n := range haystack.NeverTags {
		b.Delete(n)
	}
	return b.ToDict()
}
