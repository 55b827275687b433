package evconv

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/rulebook"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func frame(h, w, c int, data ...float32) *tensor.Dense {
	if data == nil {
		data = make([]float32, h*w*c)
	}
	return tensor.New(tensor.WithShape(h, w, c), tensor.WithBacking(data))
}

func outputOf(t *testing.T, step Step) []float32 {
	data, ok := step.Output.Data().([]float32)
	require.True(t, ok)
	retVal := make([]float32, len(data))
	copy(retVal, data)
	return retVal
}

func mustLayer(t *testing.T, conf Config, opts ...Option) *Layer {
	l, err := New(conf, opts...)
	require.NoError(t, err)
	return l
}

func randomParameters(r *rand.Rand, l *Layer) {
	weights := dense.New(l.FilterVolume(), l.NIn*l.NOut)
	for i := range weights.Data() {
		weights.Data()[i] = r.Float32()*2 - 1
	}
	bias := make([]float32, l.NOut)
	if l.UseBias {
		for i := range bias {
			bias[i] = r.Float32()*2 - 1
		}
	}
	if err := l.SetParameters(bias, weights); err != nil {
		panic(err)
	}
}

func TestForwardSinglePixel(t *testing.T) {
	conf := Config{Dimension: 2, NIn: 1, NOut: 1, FilterSize: 1, FirstLayer: true}
	l := mustLayer(t, conf)
	weights, err := dense.FromBacking(1, 1, []float32{2})
	require.NoError(t, err)
	require.NoError(t, l.SetParameters([]float32{0}, weights))

	step, err := l.Forward([]site.Coord{{Row: 0, Col: 0}}, frame(2, 2, 1, 5, 0, 0, 0), site.Map{}, rulebook.New())
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal([]float32{10, 0, 0, 0}, outputOf(t, step))
	assert.Equal(site.NewActive, step.Sites.At(0, 0))
	assert.Equal(site.Inactive, step.Sites.At(1, 1))
	assert.Equal([]site.Coord{{Row: 0, Col: 0}}, step.Updates)
	assert.Equal([]int{2, 2, 1}, []int(step.Output.Shape()))
}

func TestForwardNoUpdates(t *testing.T) {
	stats := MakeStatistics()
	conf := DefaultConf(2, 3)
	conf.FirstLayer = true
	l := mustLayer(t, conf, WithName("first"), WithObserver(stats))
	randomParameters(rand.New(rand.NewSource(1)), l)

	book := rulebook.New()
	data := make([]float32, 4*4*2)
	data[2*2*4+2*2] = 1 // (2,2) channel 0
	data[1*2*4+3*2+1] = -2
	fm := frame(4, 4, 2, data...)
	updates, err := Diff(nil, fm, 2)
	require.NoError(t, err)
	_, err = l.Forward(updates, fm, site.Map{}, book)
	require.NoError(t, err)

	first, err := l.Forward(nil, fm, site.Map{}, book)
	require.NoError(t, err)
	second, err := l.Forward(nil, fm, site.Map{}, book)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(outputOf(t, first), outputOf(t, second))
	assert.Equal(first.Sites, second.Sites)
	assert.Empty(first.Updates)
	assert.Empty(second.Updates)

	records := stats.Records["first"]
	require.Len(t, records, 3)
	assert.NotZero(records[0].Rules)
	assert.Zero(records[1].Rules)
	assert.Zero(records[2].Rules)
	assert.Zero(records[2].Updates)
}

func TestForwardAdditivity(t *testing.T) {
	conf := DefaultConf(1, 2)
	conf.FirstLayer = true
	r := rand.New(rand.NewSource(2))
	split := mustLayer(t, conf)
	randomParameters(r, split)
	bias, weights := split.Parameters()
	joint := mustLayer(t, conf)
	require.NoError(t, joint.SetParameters(bias, weights))

	a, b := site.Coord{Row: 1, Col: 1}, site.Coord{Row: 2, Col: 2}
	onlyA := make([]float32, 16)
	onlyA[a.Linear(4)] = 3
	both := make([]float32, 16)
	copy(both, onlyA)
	both[b.Linear(4)] = -1.5

	splitBook := rulebook.New()
	_, err := split.Forward([]site.Coord{a}, frame(4, 4, 1, onlyA...), site.Map{}, splitBook)
	require.NoError(t, err)
	got, err := split.Forward([]site.Coord{b}, frame(4, 4, 1, both...), site.Map{}, splitBook)
	require.NoError(t, err)

	want, err := joint.Forward([]site.Coord{a, b}, frame(4, 4, 1, both...), site.Map{}, rulebook.New())
	require.NoError(t, err)

	assert.InDeltaSlice(t, outputOf(t, want), outputOf(t, got), 1e-5)
	assert.Equal(t, want.Sites.Indices(site.Inactive), got.Sites.Indices(site.Inactive))
}

func TestForwardZeroNetwork(t *testing.T) {
	conf := DefaultConf(2, 2)
	conf.FirstLayer = true
	l := mustLayer(t, conf)
	book := rulebook.New()
	r := rand.New(rand.NewSource(3))

	var prev *tensor.Dense
	for i := 0; i < 10; i++ {
		data := make([]float32, 5*5*2)
		for j := range data {
			if r.Intn(3) == 0 {
				data[j] = r.Float32()
			}
		}
		next := frame(5, 5, 2, data...)
		updates, err := Diff(prev, next, 2)
		require.NoError(t, err)
		step, err := l.Forward(updates, next, site.Map{}, book)
		require.NoError(t, err)
		for _, v := range outputOf(t, step) {
			require.Zero(t, v, "call %d", i)
		}
		prev = next
	}
}

func TestForwardBiasAppliedOnce(t *testing.T) {
	conf := Config{Dimension: 2, NIn: 1, NOut: 1, FilterSize: 1, FirstLayer: true, UseBias: true}
	l := mustLayer(t, conf)
	require.NoError(t, l.SetParameters([]float32{3}, dense.New(1, 1)))
	book := rulebook.New()

	p, q := site.Coord{Row: 0, Col: 1}, site.Coord{Row: 1, Col: 0}
	frames := []struct {
		data    []float32
		updates []site.Coord
		state   site.State
	}{
		{[]float32{0, 1, 0, 0}, []site.Coord{p}, site.NewActive},
		{[]float32{0, 2, 0, 0}, []site.Coord{p}, site.Active},
		{[]float32{0, 2, 4, 0}, []site.Coord{q}, site.Active},
		{[]float32{0, 2, 4, 0}, nil, site.Active},
	}
	for i, f := range frames {
		step, err := l.Forward(f.updates, frame(2, 2, 1, f.data...), site.Map{}, book)
		require.NoError(t, err)
		assert.Equal(t, f.state, step.Sites.At(p.Row, p.Col), "call %d", i)
		assert.Equal(t, float32(3), outputOf(t, step)[p.Linear(2)], "call %d", i)
	}
}

func TestForwardDeactivation(t *testing.T) {
	conf := DefaultConf(1, 2)
	conf.FirstLayer = true
	l := mustLayer(t, conf)
	randomParameters(rand.New(rand.NewSource(4)), l)
	book := rulebook.New()

	data := []float32{
		1, 2, 0,
		3, 4, 0,
		0, 0, 0,
	}
	fm := frame(3, 3, 1, data...)
	updates, err := Diff(nil, fm, 1)
	require.NoError(t, err)
	step, err := l.Forward(updates, fm, site.Map{}, book)
	require.NoError(t, err)
	before := outputOf(t, step)
	require.NotEqual(t, []float32{0, 0}, before[8:10], "(1,1) carries a value before it is switched off")

	off := make([]float32, len(data))
	copy(off, data)
	off[4] = 0
	step, err = l.Forward([]site.Coord{{Row: 1, Col: 1}}, frame(3, 3, 1, off...), site.Map{}, book)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(site.NewInactive, step.Sites.At(1, 1))
	assert.Equal([]float32{0, 0}, outputOf(t, step)[8:10])
	assert.Contains(step.Updates, site.Coord{Row: 0, Col: 0})
	assert.Contains(step.Updates, site.Coord{Row: 1, Col: 1})
}

func TestForwardOutputShape(t *testing.T) {
	conf := DefaultConf(2, 3)
	conf.FirstLayer = true
	l := mustLayer(t, conf)
	randomParameters(rand.New(rand.NewSource(5)), l)

	data := make([]float32, 3*4*2)
	for i := range data {
		data[i] = float32(i%5) - 2
	}
	fm := frame(3, 4, 2, data...)
	updates, err := Diff(nil, fm, 2)
	require.NoError(t, err)
	step, err := l.Forward(updates, fm, site.Map{}, rulebook.New())
	require.NoError(t, err)

	flat := outputOf(t, step)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			for o := 0; o < 3; o++ {
				v, err := step.Output.At(r, c, o)
				require.NoError(t, err)
				assert.Equal(t, flat[(r*4+c)*3+o], v)
			}
		}
	}

	// H×(W·NIn) is accepted as well
	l2 := mustLayer(t, conf)
	bias, weights := l.Parameters()
	require.NoError(t, l2.SetParameters(bias, weights))
	flatIn := tensor.New(tensor.WithShape(3, 8), tensor.WithBacking(append([]float32(nil), data...)))
	step2, err := l2.Forward(updates, flatIn, site.Map{}, rulebook.New())
	require.NoError(t, err)
	if diff := cmp.Diff(flat, outputOf(t, step2)); diff != "" {
		t.Errorf("flat input gave a different output (-want +got):\n%s", diff)
	}
}

func TestForwardErrors(t *testing.T) {
	conf := DefaultConf(2, 1)
	conf.FirstLayer = true
	l := mustLayer(t, conf)
	randomParameters(rand.New(rand.NewSource(6)), l)
	book := rulebook.New()

	_, err := l.Forward(nil, frame(2, 3, 1), site.Map{}, book)
	require.Error(t, err)
	_, ok := errors.Cause(err).(ShapeMismatchError)
	assert.True(t, ok, "%v", err)

	_, err = l.Forward([]site.Coord{{Row: 2, Col: 0}}, frame(2, 2, 2), site.Map{}, book)
	require.Error(t, err)
	oob, ok := errors.Cause(err).(IndexOutOfRangeError)
	require.True(t, ok, "%v", err)
	assert.Equal(t, site.Coord{Row: 2, Col: 0}, oob.Coord)

	_, err = l.Forward(nil, nil, site.Map{}, book)
	assert.Error(t, err)
	_, err = l.Forward(nil, frame(2, 2, 2), site.Map{}, nil)
	assert.Error(t, err)

	data := []float32{1, 0, 0, 2, 0, 0, 0, 0}
	fm := frame(2, 2, 2, data...)
	updates, err := Diff(nil, fm, 2)
	require.NoError(t, err)
	want, err := l.Forward(updates, fm, site.Map{}, book)
	require.NoError(t, err)

	_, err = l.Forward(nil, frame(3, 3, 2), site.Map{}, book)
	require.Error(t, err)
	resize, ok := errors.Cause(err).(UnsupportedResizeError)
	require.True(t, ok, "%v", err)
	assert.Equal(t, UnsupportedResizeError{H: 2, W: 2, GotH: 3, GotW: 3}, resize)

	// the failed calls left the layer as it was
	got, err := l.Forward(nil, fm, site.Map{}, book)
	require.NoError(t, err)
	assert.Equal(t, outputOf(t, want), outputOf(t, got))

	l.Reset()
	_, err = l.Forward(nil, frame(3, 3, 2), site.Map{}, rulebook.New())
	assert.NoError(t, err, "a reset layer accepts a new size")
}

func TestForwardDownstreamErrors(t *testing.T) {
	l := mustLayer(t, DefaultConf(1, 1))
	book := rulebook.New()
	require.NoError(t, book.Initialize(2, 2, 3, 2))

	_, err := l.Forward(nil, frame(2, 2, 1), site.Map{}, book)
	require.Error(t, err)
	_, ok := errors.Cause(err).(ShapeMismatchError)
	assert.True(t, ok, "a downstream layer needs the classification: %v", err)

	_, err = l.Forward(nil, frame(2, 3, 1), site.MakeMap(2, 3), book)
	require.Error(t, err, "book width disagrees")

	step, err := l.Forward(nil, frame(2, 2, 1), site.MakeMap(2, 2), book)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, outputOf(t, step))
}

type recorder struct {
	phases []Phase
}

func (r *recorder) Observe(info StepInfo) { r.phases = append(r.phases, info.Phase) }

func TestForwardObserversAndLog(t *testing.T) {
	rec := new(recorder)
	conf := DefaultConf(1, 1)
	conf.FirstLayer = true
	l := mustLayer(t, conf, WithName("obs"), WithObserver(rec), WithLogging(true))

	_, err := l.Forward([]site.Coord{{Row: 0, Col: 0}}, frame(2, 2, 1, 1, 0, 0, 0), site.Map{}, rulebook.New())
	require.NoError(t, err)

	assert.Equal(t, []Phase{BeforeRules, AfterRules, BeforeAccumulate, AfterAccumulate}, rec.phases)
	log := l.ExecLog()
	assert.Contains(t, log, "obs#0 BeforeRules")
	assert.Contains(t, log, "obs#0 AfterAccumulate")
}
