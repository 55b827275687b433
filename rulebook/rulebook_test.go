package rulebook

import (
	"strings"
	"testing"

	"github.com/gorgonia/evconv/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rule struct{ k, in, out int }

func collect(b *Book) []rule {
	var retVal []rule
	for k := 0; k < b.Volume(); k++ {
		in, out := b.Rules(k)
		if len(in) != b.NRules(k) || len(out) != b.NRules(k) {
			panic("NRules disagrees with Rules")
		}
		for r := range in {
			retVal = append(retVal, rule{k, in[r], out[r]})
		}
	}
	return retVal
}

func TestInitialize(t *testing.T) {
	assert := assert.New(t)
	b := New()
	assert.False(b.Initialized())
	assert.Error(b.Initialize(2, 2, 3, 3), "only 2D")
	assert.Error(b.Initialize(0, 2, 3, 2))

	require.NoError(t, b.Initialize(4, 5, 3, 2))
	assert.Equal(9, b.Volume())
	assert.Equal(5, b.Width())
	assert.Equal(4, b.Height())
	assert.Equal(3, b.FilterSize())

	assert.NoError(b.Initialize(4, 5, 3, 2), "same geometry is a no-op")
	assert.Error(b.Initialize(5, 5, 3, 2))
	assert.Error(b.Initialize(4, 5, 1, 2))

	b.Reset()
	assert.False(b.Initialized())
	assert.NoError(b.Initialize(5, 5, 1, 2))
}

func TestTransition(t *testing.T) {
	var cases = []struct {
		wasInactive, becameZero bool
		want                    site.State
	}{
		{true, false, site.NewActive},
		{false, true, site.NewInactive},
		{true, true, site.Inactive},
		{false, false, site.Active},
	}
	for _, c := range cases {
		if got := transition(c.wasInactive, c.becameZero); got != c.want {
			t.Errorf("transition(%t, %t): expected %v. Got %v", c.wasInactive, c.becameZero, c.want, got)
		}
	}
}

func TestUpdateSinglePixel(t *testing.T) {
	assert := assert.New(t)
	b := New()
	require.NoError(t, b.Initialize(2, 2, 1, 2))

	sites := site.MakeMap(2, 2)
	sites.States[0] = site.Active
	hints := Hints{WasInactive: []bool{true}, BecameZero: []bool{false}}
	got, newUpdates, err := b.Update(hints, []int{0}, sites)
	require.NoError(t, err)

	assert.Equal(site.NewActive, got.States[0])
	assert.Equal(site.Active, sites.States[0], "the incoming classification must not be mutated")
	assert.Equal([]int{0}, newUpdates)
	assert.Equal([]rule{{0, 0, 0}}, collect(b))
}

func TestUpdateNeighbourhood(t *testing.T) {
	assert := assert.New(t)
	b := New()
	require.NoError(t, b.Initialize(3, 3, 3, 2))

	// · o ·
	// · x ·     x is updated and stays active
	// · · o
	sites := site.MakeMap(3, 3)
	sites.States[1] = site.Active
	sites.States[4] = site.Active
	sites.States[8] = site.Active
	hints := Hints{WasInactive: []bool{false}, BecameZero: []bool{false}}
	got, newUpdates, err := b.Update(hints, []int{4}, sites)
	require.NoError(t, err)
	assert.Equal(site.Active, got.States[4])
	assert.Equal([]int{1, 4, 8}, newUpdates)

	// pixel 4 reaches output 1 with offset (+1, 0) i.e. k = 7,
	// itself with k = 4, and output 8 with offset (-1,-1) i.e. k = 0.
	assert.ElementsMatch([]rule{{7, 4, 1}, {4, 4, 4}, {0, 4, 8}}, collect(b))
	assert.Equal(3, b.TotalRules())
}

func TestUpdateNewActiveGathers(t *testing.T) {
	assert := assert.New(t)
	b := New()
	require.NoError(t, b.Initialize(3, 3, 3, 2))

	sites := site.MakeMap(3, 3)
	sites.States[0] = site.Active
	sites.States[4] = site.Active
	hints := Hints{WasInactive: []bool{true}, BecameZero: []bool{false}}
	got, newUpdates, err := b.Update(hints, []int{4}, sites)
	require.NoError(t, err)
	assert.Equal(site.NewActive, got.States[4])
	assert.Equal(site.Active, got.States[0])
	assert.Equal([]int{0, 4}, newUpdates)

	// 4 → 0 (k = 8) and 4 → 4 (k = 4) from the scatter pass, then 0 → 4 (k = 0)
	// from the gather pass. 4 → 4 must not be duplicated.
	assert.ElementsMatch([]rule{{8, 4, 0}, {4, 4, 4}, {0, 0, 4}}, collect(b))
}

func TestUpdateNewInactive(t *testing.T) {
	assert := assert.New(t)
	b := New()
	require.NoError(t, b.Initialize(1, 3, 3, 2))

	sites := site.MakeMap(1, 3)
	sites.States[0] = site.Active
	sites.States[1] = site.Active
	hints := Hints{WasInactive: []bool{false}, BecameZero: []bool{true}}
	got, newUpdates, err := b.Update(hints, []int{1}, sites)
	require.NoError(t, err)
	assert.Equal(site.NewInactive, got.States[1])
	assert.Equal([]int{0, 1}, newUpdates)
	// only pixel 0 is still an active output
	assert.Equal([]rule{{5, 1, 0}}, collect(b))
}

func TestUpdateAuthoritativeSites(t *testing.T) {
	assert := assert.New(t)
	b := New()
	require.NoError(t, b.Initialize(1, 3, 1, 2))

	sites := site.MakeMap(1, 3)
	sites.States[2] = site.NewActive
	got, newUpdates, err := b.Update(Hints{}, []int{2, 2}, sites)
	require.NoError(t, err)
	assert.Equal(sites.States, got.States)
	assert.Equal([]int{2}, newUpdates)
	assert.Equal([]rule{{0, 2, 2}}, collect(b))
}

func TestUpdateRebuildsRules(t *testing.T) {
	b := New()
	require.NoError(t, b.Initialize(1, 2, 1, 2))
	sites := site.MakeMap(1, 2)
	sites.States[0] = site.Active
	sites.States[1] = site.Active
	_, _, err := b.Update(Hints{}, []int{0, 1}, sites)
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalRules())

	_, _, err = b.Update(Hints{}, []int{1}, sites)
	require.NoError(t, err)
	assert.Equal(t, []rule{{0, 1, 1}}, collect(b))
}

func TestUpdateErrors(t *testing.T) {
	b := New()
	_, _, err := b.Update(Hints{}, nil, site.Map{})
	assert.Error(t, err, "uninitialized")

	require.NoError(t, b.Initialize(2, 2, 1, 2))
	_, _, err = b.Update(Hints{}, []int{0}, site.MakeMap(3, 3))
	assert.Error(t, err, "classification size")

	_, _, err = b.Update(Hints{}, []int{4}, site.MakeMap(2, 2))
	assert.Error(t, err, "pixel out of range")

	_, _, err = b.Update(Hints{WasInactive: []bool{true}}, []int{0, 1}, site.MakeMap(2, 2))
	assert.Error(t, err, "hint count")
}

func TestToDot(t *testing.T) {
	b := New()
	require.NoError(t, b.Initialize(1, 2, 1, 2))
	sites := site.MakeMap(1, 2)
	sites.States[1] = site.Active
	_, _, err := b.Update(Hints{}, []int{1}, sites)
	require.NoError(t, err)

	dot := b.ToDot()
	assert.True(t, strings.Contains(dot, "digraph"), dot)
	assert.True(t, strings.Contains(dot, "p1->p1"), dot)
}
