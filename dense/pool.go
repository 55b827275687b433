package dense

import (
	"sync"
)

// poolLock guards iterPool.
var poolLock sync.Mutex

var iterPool = make(map[int]map[int]*sync.Pool)

func iterPoolFor(m, n int) *sync.Pool {
	poolLock.Lock()
	defer poolLock.Unlock()
	d, ok := iterPool[m]
	if !ok {
		d = make(map[int]*sync.Pool)
		iterPool[m] = d
	}
	p, ok := d[n]
	if !ok {
		p = &sync.Pool{
			New: func() interface{} { return make([][]float32, m) },
		}
		d[n] = p
	}
	return p
}

// Iterator returns one slice per row, each a view into m's backing. Give it back
// with ReturnIterator once done.
func (m *Matrix) Iterator() [][]float32 {
	retVal := iterPoolFor(m.rows, m.cols).Get().([][]float32)
	for i := range retVal {
		retVal[i] = m.Row(i)
	}
	return retVal
}

// ReturnIterator returns an iterator obtained from (*Matrix).Iterator.
func ReturnIterator(m, n int, it [][]float32) {
	for i := range it {
		it[i] = nil
	}
	iterPoolFor(m, n).Put(it)
}
