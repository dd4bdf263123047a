package haystack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictBuilderOrderAndLookup(t *testing.T) {
	d := NewDictBuilder().
		SetMarker("site").
		Set("dis", Str("Test Site")).
		Set("area", NumUnit(1200, "m²")).
		ToDict()

	assert.Equal(t, []string{"site", "dis", "area"}, d.Names())
	assert.True(t, d.Has("site"))
	assert.Equal(t, "Test Site", d.Str("dis"))
	assert.Equal(t, 3, d.Len())

	v, ok := d.Get("area")
	require.True(t, ok)
	assert.Equal(t, NumUnit(1200, "m²"), v)
}

func TestDictBuilderDeleteKeepsOrder(t *testing.T) {
	d := NewDictBuilder().
		Set("a", Num(1)).
		Set("b", Num(2)).
		Set("c", Num(3)).
		Delete("b").
		ToDict()

	assert.Equal(t, []string{"a", "c"}, d.Names())
	assert.False(t, d.Has("b"))
}

func TestDictEqIsOrderInsensitive(t *testing.T) {
	a := NewDictBuilder().Set("x", Num(1)).SetMarker("site").ToDict()
	b := NewDictBuilder().SetMarker("site").Set("x", Num(1)).ToDict()
	c := NewDictBuilder().SetMarker("site").Set("x", Num(2)).ToDict()

	assert.True(t, Eq(a, b))
	assert.False(t, Eq(a, c))
}

func TestDictDupIsIndependent(t *testing.T) {
	orig := NewDictBuilder().Set("dis", Str("one")).ToDict()
	dup := orig.Dup().Set("dis", Str("two")).ToDict()

	assert.Equal(t, "one", orig.Str("dis"))
	assert.Equal(t, "two", dup.Str("dis"))
}

func TestDictDis(t *testing.T) {
	withDis := NewDictBuilder().Set("dis", Str("Boiler")).ToDict()
	assert.Equal(t, "Boiler", withDis.Dis())

	r := NewRef("a-1")
	withID := NewDictBuilder().Set("id", r).ToDict()
	assert.Equal(t, "a-1", withID.Dis())
	r.SetDis("Pump")
	assert.Equal(t, "Pump", withID.Dis())
}

func TestRefEqualityIgnoresDis(t *testing.T) {
	a := NewRef("x")
	b := NewRefDis("x", "Display")
	assert.True(t, Eq(a, b))
	assert.True(t, b.HasDis())
	assert.False(t, a.HasDis())
	assert.Equal(t, "x", a.Dis())
	assert.Equal(t, "Display", b.Dis())
}

func TestGenRefIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenRef().ID()
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestDateTimeTruncatesToMillis(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 30, 45, 123456789, time.UTC)
	d := NewDateTime(base)
	assert.Equal(t, int64(123), d.UnixMilli()%1000)
	assert.Equal(t, "UTC", d.TZ())
}

func TestDateTimeZoneConversion(t *testing.T) {
	utc := FromUnixMilli(1700000000000, "UTC")
	ny := utc.In("New_York")

	assert.Equal(t, "New_York", ny.TZ())
	assert.Equal(t, utc.UnixMilli(), ny.UnixMilli())
	assert.True(t, utc.Same(ny))
	// eq also compares the zone name
	assert.False(t, Eq(utc, ny))
}

func TestDateTimeAddMillis(t *testing.T) {
	d := FromUnixMilli(1000, "UTC")
	assert.Equal(t, int64(1001), d.AddMillis(1).UnixMilli())
	assert.True(t, d.Before(d.AddMillis(1)))
	assert.True(t, d.AddMillis(1).After(d))
}

func TestLoadTZShortNames(t *testing.T) {
	loc, err := LoadTZ("New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	loc, err = LoadTZ("Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = LoadTZ("Not_A_City_Anywhere")
	assert.Error(t, err)
}

func TestNeverTags(t *testing.T) {
	for _, n := range NeverTags {
		assert.True(t, IsNeverTag(n))
	}
	assert.False(t, IsNeverTag("site"))
	assert.False(t, IsNeverTag("his"))
}

func TestNumberUnit(t *testing.T) {
	n := Num(21.5)
	assert.False(t, n.HasUnit())
	u := n.WithUnit("°C")
	assert.True(t, u.HasUnit())
	assert.Equal(t, 21.5, u.Val)
	assert.False(t, Eq(n, u))
}

func TestValEqAcrossKinds(t *testing.T) {
	assert.True(t, Eq(M, M))
	assert.True(t, Eq(Rm, Rm))
	assert.False(t, Eq(M, Rm))
	assert.False(t, Eq(Str("1"), Num(1)))
	assert.True(t, Eq(List{Num(1), Str("a")}, List{Num(1), Str("a")}))
	assert.False(t, Eq(List{Num(1)}, List{Num(2)}))
}
