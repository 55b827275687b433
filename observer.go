package evconv

import (
	"fmt"
	"time"
)

// Phase names a point in Forward at which observers are notified.
type Phase int

const (
	BeforeRules Phase = iota
	AfterRules
	BeforeAccumulate
	AfterAccumulate
)

func (p Phase) Format(s fmt.State, c rune) {
	switch p {
	case BeforeRules:
		fmt.Fprint(s, "BeforeRules")
	case AfterRules:
		fmt.Fprint(s, "AfterRules")
	case BeforeAccumulate:
		fmt.Fprint(s, "BeforeAccumulate")
	case AfterAccumulate:
		fmt.Fprint(s, "AfterAccumulate")
	default:
		fmt.Fprintf(s, "Phase(%d)", int(p))
	}
}

// StepInfo describes the progress of one Forward call. Counts that are not known
// yet at a given phase are zero.
type StepInfo struct {
	Layer string
	Call  int // 0-based index of the Forward call on this layer
	Phase Phase

	Updates     int // update locations received
	NewUpdates  int // locations handed to the next layer
	Rules       int // rules applied during accumulation
	NewActive   int
	NewInactive int

	Elapsed time.Duration // since the call started
}

// Observer is notified at each Phase of a Forward call. Observers must not call
// back into the layer.
type Observer interface {
	Observe(info StepInfo)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(info StepInfo)

func (f ObserverFunc) Observe(info StepInfo) { f(info) }

func (l *Layer) observe(info StepInfo) {
	if l.logger != nil {
		l.logger.Printf("%s#%d %v: updates %d, new updates %d, rules %d, +%d/-%d, %v",
			info.Layer, info.Call, info.Phase, info.Updates, info.NewUpdates, info.Rules, info.NewActive, info.NewInactive, info.Elapsed)
	}
	for _, o := range l.observers {
		o.Observe(info)
	}
}
