package evconv

import (
	"time"

	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/rulebook"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// update is the incremental step. updates are linear pixel indices, input is the
// full current input and sites the classification before this step's transitions.
//
// Nothing persisted is touched until every rule has been applied to a copy of the
// output, so an error leaves the layer unchanged.
func (l *Layer) update(updates []int, input *dense.Matrix, sites site.Map, book RuleBook, noUpdates bool) (newUpdates []int, out *dense.Matrix, newSites site.Map, err error) {
	start := time.Now()
	info := StepInfo{
		Layer: l.name,
		Call:  l.calls,
	}
	if !noUpdates {
		info.Updates = len(updates)
	}

	var hints rulebook.Hints
	if l.FirstLayer {
		cur, prev := input.RowsL1(updates), l.maps.previous.RowsL1(updates)
		hints.BecameZero = make([]bool, len(updates))
		hints.WasInactive = make([]bool, len(updates))
		for j := range updates {
			hints.BecameZero[j] = cur[j] == 0
			hints.WasInactive[j] = prev[j] == 0
		}
		l.tr.log("%s: became zero %v, was inactive %v", l.name, hints.BecameZero, hints.WasInactive)
	}

	info.Phase = BeforeRules
	info.Elapsed = time.Since(start)
	l.observe(info)

	newSites = sites
	if !noUpdates {
		if newSites, newUpdates, err = book.Update(hints, updates, sites); err != nil {
			return nil, nil, site.Map{}, errors.WithMessage(err, "rule book update failed")
		}
		if newSites.Len() != input.Rows() {
			return nil, nil, site.Map{}, errors.WithStack(ShapeMismatchError{What: "revised classification", Want: []int{input.Rows()}, Got: []int{newSites.Len()}})
		}
	}
	info.NewUpdates = len(newUpdates)
	info.NewActive = newSites.Count(site.NewActive)
	info.NewInactive = newSites.Count(site.NewInactive)

	info.Phase = AfterRules
	info.Elapsed = time.Since(start)
	l.observe(info)

	info.Phase = BeforeAccumulate
	info.Elapsed = time.Since(start)
	l.observe(info)

	out = l.maps.output.Clone()
	if !noUpdates {
		if info.Rules, err = l.accumulate(out, input, newSites, book); err != nil {
			return nil, nil, site.Map{}, err
		}
	}

	for p, s := range newSites.States {
		switch {
		case s == site.NewInactive:
			out.ZeroRow(p)
		case s == site.NewActive && l.UseBias:
			out.AddRow(p, l.bias)
		}
	}

	// persist
	if err = l.maps.previous.CopyFrom(input); err != nil {
		return nil, nil, site.Map{}, errors.WithStack(err)
	}
	l.maps.output = out
	l.calls++

	info.Phase = AfterAccumulate
	info.Elapsed = time.Since(start)
	l.observe(info)
	return newUpdates, out, newSites, nil
}

// accumulate adds the contribution of every rule in book to out. A rule whose
// output became active this step contributes the full input, any other the
// difference from the previous input.
func (l *Layer) accumulate(out, input *dense.Matrix, sites site.Map, book RuleBook) (rules int, err error) {
	n := input.Rows()
	for k := 0; k < l.filterVolume; k++ {
		nrules := book.NRules(k)
		if nrules == 0 {
			continue
		}
		var block *dense.Matrix
		if block, err = l.weights.Block(k, l.NOut, l.NIn); err != nil {
			return rules, errors.WithStack(err)
		}
		in, outs := book.Rules(k)
		if len(in) < nrules || len(outs) < nrules {
			return rules, errors.Errorf("kernel offset %d reports %d rules but lists %d/%d", k, nrules, len(in), len(outs))
		}
		in, outs = in[:nrules], outs[:nrules]
		for r := range in {
			if in[r] < 0 || in[r] >= n || outs[r] < 0 || outs[r] >= n {
				return rules, errors.Errorf("rule (%d, %d) at kernel offset %d is outside of %d pixels", in[r], outs[r], k, n)
			}
		}
		l.tr.log("%s: offset %d at %v, %d rules, weights %v", l.name, k, l.kernelIndices[k], nrules, block.Data())

		// rows of delta become input minus previous input, except for new outputs
		delta := input.Gather(in)
		prev := l.maps.previous.Gather(in)
		for r, o := range outs {
			if sites.States[o] != site.NewActive {
				vecf32.Sub(delta.Row(r), prev.Row(r))
			}
			block.MulVecAdd(out.Row(o), delta.Row(r))
		}
		rules += nrules
	}
	return rules, nil
}
