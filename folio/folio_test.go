package folio_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/lib/filter"
	"github.com/foliodb/foliodb/lib/haystack"
	"github.com/foliodb/foliodb/redis/redistest"
	"github.com/foliodb/foliodb/redis/wire"
)

func openStore(t *testing.T, cfg folio.Config) (*redistest.Server, *folio.Folio) {
	t.Helper()
	srv, err := redistest.Start()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.Endpoint()
	f, err := folio.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return srv, f
}

func tags(pairs ...any) *haystack.Dict {
	b := haystack.NewDictBuilder()
	for i := 0; i+1 < len(pairs); i += 2 {
		b.Set(pairs[i].(string), pairs[i+1].(haystack.Val))
	}
	return b.ToDict()
}

func addSite(t *testing.T, f *folio.Folio, dis string) *haystack.Dict {
	t.Helper()
	rec, err := f.Commit(folio.NewAddDiff(
		tags("dis", haystack.Str(dis), "site", haystack.M), nil), nil)
	require.NoError(t, err)
	return rec
}

func TestCreateReadUpdateRemove(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	r1, err := f.Commit(folio.NewAddDiff(
		tags("dis", haystack.Str("S"), "site", haystack.M), nil), nil)
	require.NoError(t, err)
	require.NotNil(t, r1.ID())
	assert.False(t, r1.Mod().IsZero())

	got, err := f.ReadByID(r1.ID())
	require.NoError(t, err)
	assert.True(t, haystack.Eq(r1, got))

	r2, err := f.Commit(folio.NewDiff(r1, tags("dis", haystack.Str("S2")), 0), nil)
	require.NoError(t, err)
	assert.Equal(t, "S2", r2.Str("dis"))
	assert.True(t, r2.Mod().After(r1.Mod()))

	_, err = f.Commit(folio.NewRemoveDiff(r2), nil)
	require.NoError(t, err)

	_, err = f.ReadByID(r1.ID())
	var unknown *folio.UnknownRecError
	require.ErrorAs(t, err, &unknown)

	// storage carries no trace of the id
	id := r1.ID().ID()
	require.NoError(t, f.Pool().WithConn(func(c *wire.Client) error {
		all, err := c.SMembers(folio.KeyAll)
		require.NoError(t, err)
		assert.NotContains(t, all, id)

		sites, err := c.SMembers(folio.TagKey("site"))
		require.NoError(t, err)
		assert.NotContains(t, sites, id)

		_, found, err := c.HGet(folio.RecKey(id), "trio")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestTrashHidesFromDefaultReads(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	a := addSite(t, f, "A")
	addSite(t, f, "B")
	addSite(t, f, "C")

	_, err := f.Commit(folio.NewDiff(a, tags("trash", haystack.M), 0), nil)
	require.NoError(t, err)

	assert.Len(t, f.ReadAll(filter.Has("site"), folio.ReadOpts{}), 2)
	assert.Len(t, f.ReadAll(filter.Has("site"), folio.ReadOpts{Trash: true}), 3)
	assert.Equal(t, 2, f.ReadCount(filter.Has("site"), folio.ReadOpts{}))

	// trashed records stay in the tag index
	require.NoError(t, f.Pool().WithConn(func(c *wire.Client) error {
		sites, err := c.SMembers(folio.TagKey("site"))
		require.NoError(t, err)
		assert.Contains(t, sites, a.ID().ID())
		return nil
	}))
}

func TestConcurrentUpdateConflict(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	r1 := addSite(t, f, "S")
	v := f.CurVer()

	// two callers hold the same record; the second commit loses
	_, err := f.Commit(folio.NewDiff(r1, tags("dis", haystack.Str("first")), 0), nil)
	require.NoError(t, err)

	_, err = f.Commit(folio.NewDiff(r1, tags("dis", haystack.Str("second")), 0), nil)
	var conflict *folio.ConcurrentChangeError
	require.ErrorAs(t, err, &conflict)

	got, err := f.ReadByID(r1.ID())
	require.NoError(t, err)
	assert.Equal(t, "first", got.Str("dis"))
	assert.Equal(t, v+1, f.CurVer())
}

func TestForceSkipsConcurrencyCheck(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	r1 := addSite(t, f, "S")
	_, err := f.Commit(folio.NewDiff(r1, tags("dis", haystack.Str("first")), 0), nil)
	require.NoError(t, err)

	_, err = f.Commit(folio.NewDiff(r1, tags("dis", haystack.Str("forced")), folio.DiffForce), nil)
	require.NoError(t, err)

	got, err := f.ReadByID(r1.ID())
	require.NoError(t, err)
	assert.Equal(t, "forced", got.Str("dis"))
}

func TestTransientDoesNotAdvanceVersion(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	r1 := addSite(t, f, "S")
	v := f.CurVer()

	r2, err := f.Commit(folio.NewDiff(r1,
		tags("curVal", haystack.Num(21.5)), folio.DiffTransient), nil)
	require.NoError(t, err)

	assert.Equal(t, v, f.CurVer())
	assert.True(t, r2.Mod().Same(r1.Mod()), "transient keeps mod")

	got, err := f.ReadByID(r1.ID())
	require.NoError(t, err)
	v2, ok := got.Get("curVal")
	require.True(t, ok)
	assert.True(t, haystack.Eq(haystack.Num(21.5), v2))

	// the transient tag is not persisted
	require.NoError(t, f.Pool().WithConn(func(c *wire.Client) error {
		enc, found, err := c.HGet(folio.RecKey(r1.ID().ID()), "trio")
		require.NoError(t, err)
		require.True(t, found)
		rec, err := f.Serializer().Deserialize(enc)
		require.NoError(t, err)
		assert.False(t, rec.Has("curVal"))
		return nil
	}))
}

func TestModMonotonicity(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	rec := addSite(t, f, "S")
	prev := rec.Mod()
	for i := 0; i < 5; i++ {
		var err error
		rec, err = f.Commit(folio.NewDiff(rec,
			tags("dis", haystack.Str(fmt.Sprintf("S%d", i))), 0), nil)
		require.NoError(t, err)
		assert.True(t, rec.Mod().After(prev), "mod must strictly increase")
		prev = rec.Mod()
	}
}

func TestAddExistingFails(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	rec := addSite(t, f, "S")
	_, err := f.Commit(folio.NewAddDiff(tags("site", haystack.M), rec.ID()), nil)
	var exists *folio.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
}

func TestUpdateUnknownFails(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	diff := &folio.Diff{ID: haystack.NewRef("ghost"), Changes: tags("dis", haystack.Str("x"))}
	_, err := f.Commit(diff, nil)
	var unknown *folio.UnknownRecError
	require.ErrorAs(t, err, &unknown)

	_, err = f.Commit(&folio.Diff{ID: haystack.NewRef("ghost"), Flags: folio.DiffRemove}, nil)
	var commitErr *folio.CommitError
	require.ErrorAs(t, err, &commitErr)
}

func TestBatchAtomicity(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	rec := addSite(t, f, "S")
	v := f.CurVer()

	// second diff targets an unknown id, the whole batch must fail
	_, err := f.CommitAll([]*folio.Diff{
		folio.NewDiff(rec, tags("dis", haystack.Str("changed")), 0),
		{ID: haystack.NewRef("ghost"), Changes: tags("dis", haystack.Str("x"))},
	}, nil)
	require.Error(t, err)

	got, err := f.ReadByID(rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "S", got.Str("dis"))
	assert.Equal(t, v, f.CurVer())
}

func TestDiffValidation(t *testing.T) {
	_, f := openStore(t, folio.Config{})
	rec := addSite(t, f, "S")

	cases := []*folio.Diff{
		{ID: nil, Changes: tags("a", haystack.M)},
		folio.NewDiff(rec, tags("id", haystack.NewRef("other")), 0),
		folio.NewDiff(rec, tags("mod", haystack.Now()), 0),
		folio.NewDiff(rec, tags("hisSize", haystack.Num(1)), 0),
		folio.NewDiff(rec, haystack.EmptyDict, 0),
		folio.NewDiff(rec, tags("a", haystack.M), folio.DiffTransient|folio.DiffRemove),
		folio.NewAddDiff(tags("gone", haystack.Rm), nil),
	}
	for i, d := range cases {
		_, err := f.Commit(d, nil)
		var commitErr *folio.CommitError
		assert.ErrorAs(t, err, &commitErr, "case %d", i)
	}
}

func TestRemoveSentinelDeletesTag(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	rec, err := f.Commit(folio.NewAddDiff(
		tags("site", haystack.M, "area", haystack.Num(10)), nil), nil)
	require.NoError(t, err)

	rec, err = f.Commit(folio.NewDiff(rec, tags("area", haystack.Rm), 0), nil)
	require.NoError(t, err)
	assert.False(t, rec.Has("area"))

	// the tag index entry is gone too
	assert.Equal(t, 0, f.ReadCount(filter.Has("area"), folio.ReadOpts{}))
}

func TestReadAllSortAndLimit(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	addSite(t, f, "beta")
	addSite(t, f, "Alpha")
	addSite(t, f, "gamma")

	recs := f.ReadAll(filter.Has("site"), folio.ReadOpts{Sort: true})
	require.Len(t, recs, 3)
	assert.Equal(t, "Alpha", recs[0].Str("dis"))
	assert.Equal(t, "beta", recs[1].Str("dis"))
	assert.Equal(t, "gamma", recs[2].Str("dis"))

	assert.Len(t, f.ReadAll(filter.Has("site"), folio.ReadOpts{Limit: 2}), 2)
}

func TestReadByIDs(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	a := addSite(t, f, "A")
	b := addSite(t, f, "B")

	recs, err := f.ReadByIDs([]*haystack.Ref{a.ID(), haystack.NewRef("ghost"), b.ID()})
	var unknown *folio.UnknownRecError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.ID)

	require.Len(t, recs, 3)
	assert.NotNil(t, recs[0])
	assert.Nil(t, recs[1])
	assert.NotNil(t, recs[2])
}

func TestReadAllEachWhileStopsEarly(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	for i := 0; i < 5; i++ {
		addSite(t, f, fmt.Sprintf("S%d", i))
	}

	n := 0
	f.ReadAllEachWhile(filter.Has("site"), folio.ReadOpts{}, func(*haystack.Dict) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)
}

func TestRefInterning(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	a := f.InternRef(haystack.NewRef("x"))
	b := f.InternRef(haystack.NewRef("x"))
	assert.Same(t, a, b)

	// refs inside committed records are interned too
	rec, err := f.Commit(folio.NewAddDiff(
		tags("site", haystack.M, "siteRef", haystack.NewRef("x")), nil), nil)
	require.NoError(t, err)
	v, _ := rec.Get("siteRef")
	assert.Same(t, a, v.(*haystack.Ref))
}

func TestIDPrefixAbsolutizes(t *testing.T) {
	_, f := openStore(t, folio.Config{IDPrefix: "p:"})

	r := f.InternRef(haystack.NewRef("rel"))
	assert.Equal(t, "p:rel", r.ID())

	// already absolute ids stay untouched
	abs := f.InternRef(haystack.NewRef("q:abs"))
	assert.Equal(t, "q:abs", abs.ID())
}

func TestPreCommitHookVetoesBatch(t *testing.T) {
	veto := errors.New("vetoed")
	_, f := openStore(t, folio.Config{Hooks: folio.Hooks{
		PreCommit: func(ev folio.CommitEvent) error {
			if ev.Diff.Changes.Has("blocked") {
				return veto
			}
			return nil
		},
	}})

	_, err := f.Commit(folio.NewAddDiff(tags("blocked", haystack.M), nil), nil)
	require.ErrorIs(t, err, veto)

	_, err = f.Commit(folio.NewAddDiff(tags("site", haystack.M), nil), nil)
	require.NoError(t, err)
}

func TestPostCommitHookObservesContext(t *testing.T) {
	var gotCx any
	var gotOld *haystack.Dict
	_, f := openStore(t, folio.Config{Hooks: folio.Hooks{
		PostCommit: func(ev folio.CommitEvent) error {
			gotCx = ev.CxInfo
			gotOld = ev.OldRec
			return nil
		},
	}})

	rec := addSite(t, f, "S")
	assert.Nil(t, gotOld)

	_, err := f.Commit(folio.NewDiff(rec, tags("dis", haystack.Str("S2")), 0), "user:alice")
	require.NoError(t, err)
	assert.Equal(t, "user:alice", gotCx)
	assert.True(t, haystack.Eq(rec, gotOld))
}

func TestReloadFromStorage(t *testing.T) {
	srv, err := redistest.Start()
	require.NoError(t, err)
	defer srv.Close()

	cfg := folio.Config{Endpoint: srv.Endpoint()}
	f, err := folio.Open(cfg)
	require.NoError(t, err)

	a := addSite(t, f, "A")
	b := addSite(t, f, "B")
	_, err = f.Commit(folio.NewDiff(b, tags("trash", haystack.M), 0), nil)
	require.NoError(t, err)
	ver := f.CurVer()
	require.NoError(t, f.Close())

	// a fresh store sees the same records, trash state and version
	f2, err := folio.Open(cfg)
	require.NoError(t, err)
	defer f2.Close()

	assert.Equal(t, ver, f2.CurVer())

	got, err := f2.ReadByID(a.ID())
	require.NoError(t, err)
	assert.Equal(t, "A", got.Str("dis"))
	assert.True(t, got.Mod().Same(a.Mod()))

	_, err = f2.ReadByID(b.ID())
	var unknown *folio.UnknownRecError
	require.ErrorAs(t, err, &unknown)
	trashed, ok := f2.Rec(b.ID())
	require.True(t, ok)
	assert.True(t, trashed.IsTrash())

	assert.Equal(t, 1, f2.ReadCount(filter.Has("site"), folio.ReadOpts{}))
}

func TestCommitAfterCloseFails(t *testing.T) {
	srv, err := redistest.Start()
	require.NoError(t, err)
	defer srv.Close()

	f, err := folio.Open(folio.Config{Endpoint: srv.Endpoint()})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Commit(folio.NewAddDiff(tags("site", haystack.M), nil), nil)
	var commitErr *folio.CommitError
	require.ErrorAs(t, err, &commitErr)
}

func TestUnsupportedSurfaces(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	var unsupported *folio.UnsupportedError
	require.ErrorAs(t, f.Backup("/tmp"), &unsupported)
	require.ErrorAs(t, f.RenameIndexPrefix("a", "b"), &unsupported)
}

func TestPatchTransientDoesNotClobberCommits(t *testing.T) {
	_, f := openStore(t, folio.Config{})
	rec, err := f.Commit(folio.NewAddDiff(
		tags("dis", haystack.Str("P"), "point", haystack.M), nil), nil)
	require.NoError(t, err)
	id := rec.ID()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		patch := tags("hisSize", haystack.Num(1))
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = f.PatchTransient(id, patch)
		}
	}()

	// a patch racing the write goroutine must never regress the cache to
	// a pre-commit record
	cur := rec
	for i := 0; i < 500; i++ {
		got, err := f.Commit(folio.NewDiff(cur,
			tags("dis", haystack.Str(fmt.Sprintf("P%d", i))), folio.DiffForce), nil)
		require.NoError(t, err)

		cached, ok := f.Rec(id)
		require.True(t, ok)
		assert.True(t, cached.Mod().Same(got.Mod()),
			"cached record regressed past commit %d", i)
		assert.Equal(t, fmt.Sprintf("P%d", i), cached.Str("dis"))
		cur = got
	}
	close(stop)
	<-done
}

func TestDisMacroResolution(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	site, err := f.Commit(folio.NewAddDiff(
		tags("dis", haystack.Str("HQ"), "site", haystack.M), nil), nil)
	require.NoError(t, err)

	equip, err := f.Commit(folio.NewAddDiff(
		tags("disMacro", haystack.Str("$siteRef AHU"),
			"siteRef", site.ID(),
			"equip", haystack.M), nil), nil)
	require.NoError(t, err)

	f.RefreshDis()
	assert.Equal(t, "HQ AHU", equip.ID().Dis())
	assert.Equal(t, "HQ", site.ID().Dis())
}

func TestDisMacroCycleResolvesToIDs(t *testing.T) {
	_, f := openStore(t, folio.Config{})

	aRef := haystack.NewRef("a")
	bRef := haystack.NewRef("b")
	_, err := f.Commit(folio.NewAddDiff(
		tags("disMacro", haystack.Str("$other x"), "other", bRef), aRef), nil)
	require.NoError(t, err)
	_, err = f.Commit(folio.NewAddDiff(
		tags("disMacro", haystack.Str("$other y"), "other", aRef), bRef), nil)
	require.NoError(t, err)

	// must terminate; the inner occurrence falls back to the id string
	f.RefreshDis()
	a := f.InternRef(aRef)
	b := f.InternRef(bRef)
	assert.NotEmpty(t, a.Dis())
	assert.NotEmpty(t, b.Dis())
}
