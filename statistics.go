package evconv

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
)

// Statistics collects one record per completed Forward call of every layer it
// observes. It may be shared by layers running on different goroutines.
type Statistics struct {
	sync.Mutex
	Layers  []string
	Records map[string][]StepInfo
}

func MakeStatistics() *Statistics {
	return &Statistics{
		Layers:  make([]string, 0, 8),
		Records: make(map[string][]StepInfo),
	}
}

// Observe implements Observer. Only AfterAccumulate is recorded.
func (s *Statistics) Observe(info StepInfo) {
	if info.Phase != AfterAccumulate {
		return
	}
	s.Lock()
	if _, ok := s.Records[info.Layer]; !ok {
		s.Layers = append(s.Layers, info.Layer)
	}
	s.Records[info.Layer] = append(s.Records[info.Layer], info)
	s.Unlock()
}

// Last returns the most recent record of a layer.
func (s *Statistics) Last(layer string) (StepInfo, bool) {
	s.Lock()
	defer s.Unlock()
	records := s.Records[layer]
	if len(records) == 0 {
		return StepInfo{}, false
	}
	return records[len(records)-1], true
}

// TotalRules is the number of rules applied by a layer over all recorded calls.
func (s *Statistics) TotalRules(layer string) (n int) {
	s.Lock()
	defer s.Unlock()
	for _, r := range s.Records[layer] {
		n += r.Rules
	}
	return n
}

// Dump writes the records as CSV, one row per layer and call.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	s.Lock()
	defer s.Unlock()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"layer", "call", "updates", "new_updates", "rules", "new_active", "new_inactive", "elapsed_ns"}); err != nil {
		return err
	}
	var records [][]string
	for _, layer := range s.Layers {
		for _, r := range s.Records[layer] {
			records = append(records, []string{
				layer,
				strconv.Itoa(r.Call),
				strconv.Itoa(r.Updates),
				strconv.Itoa(r.NewUpdates),
				strconv.Itoa(r.Rules),
				strconv.Itoa(r.NewActive),
				strconv.Itoa(r.NewInactive),
				strconv.FormatInt(r.Elapsed.Nanoseconds(), 10),
			})
		}
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
