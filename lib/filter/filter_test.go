package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foliodb/foliodb/lib/haystack"
)

func rec(build func(b *haystack.DictBuilder)) *haystack.Dict {
	b := haystack.NewDictBuilder()
	build(b)
	return b.ToDict()
}

func TestCombinators(t *testing.T) {
	r := rec(func(b *haystack.DictBuilder) {
		b.SetMarker("site")
		b.Set("area", haystack.Num(100))
	})

	assert.True(t, Has("site").Matches(r))
	assert.False(t, Has("equip").Matches(r))
	assert.True(t, Eq("area", haystack.Num(100)).Matches(r))
	assert.False(t, Eq("area", haystack.Num(99)).Matches(r))
	assert.True(t, And(Has("site"), Eq("area", haystack.Num(100))).Matches(r))
	assert.False(t, And(Has("site"), Has("equip")).Matches(r))
	assert.True(t, Or(Has("equip"), Has("site")).Matches(r))
	assert.True(t, Not(Has("equip")).Matches(r))
	assert.True(t, All().Matches(r))
}

func TestSimpleTagNameDetection(t *testing.T) {
	cases := []struct {
		f    Filter
		name string
		ok   bool
	}{
		{Has("site"), "site", true},
		{Has("airTemp_2"), "airTemp_2", true},
		{Has("9bad"), "", false},
		{Has("two words"), "", false},
		{Eq("site", haystack.Num(1)), "", false},
		{And(Has("a"), Has("b")), "", false},
		{Not(Has("a")), "", false},
		{All(), "", false},
	}
	for _, tc := range cases {
		name, ok := SimpleTagName(tc.f)
		assert.Equal(t, tc.ok, ok, "pattern %q", tc.f.Pattern())
		assert.Equal(t, tc.name, name)
	}
}

func TestHisWriteCheck(t *testing.T) {
	numPoint := rec(func(b *haystack.DictBuilder) {
		b.SetMarker("point")
		b.Set("kind", haystack.Str("Number"))
	})
	anyPoint := rec(func(b *haystack.DictBuilder) {
		b.SetMarker("point")
	})

	assert.NoError(t, HisWriteCheck(numPoint, haystack.Num(20)))
	assert.NoError(t, HisWriteCheck(numPoint, haystack.Rm))
	assert.Error(t, HisWriteCheck(numPoint, haystack.Bool(true)))
	assert.Error(t, HisWriteCheck(numPoint, haystack.M))
	assert.Error(t, HisWriteCheck(numPoint, haystack.List{}))
	assert.Error(t, HisWriteCheck(numPoint, nil))

	// without a kind tag any scalar passes
	assert.NoError(t, HisWriteCheck(anyPoint, haystack.Bool(true)))
	assert.NoError(t, HisWriteCheck(anyPoint, haystack.Str("on")))
}
