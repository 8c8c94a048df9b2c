// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BytePool hands out payload copies for outbound messages and accounts for
// every buffer until it is released.

package pool

import (
	"sync"
	"sync/atomic"
)

// size classes: 512B .. 64KiB in powers of two; larger payloads bypass the pool.
const (
	minClassShift = 9
	maxClassShift = 16
	numClasses    = maxClassShift - minClassShift + 1
)

// Stats is a snapshot of BytePool accounting.
type Stats struct {
	Gets             uint64
	Puts             uint64
	OutstandingBytes int64
}

// Outstanding returns buffers handed out and not yet released.
func (s Stats) Outstanding() int64 {
	return int64(s.Gets) - int64(s.Puts)
}

// BytePool is a size-classed pool of byte slices safe for concurrent use.
type BytePool struct {
	classes [numClasses]sync.Pool // *[]byte of exactly the class size

	gets        atomic.Uint64
	puts        atomic.Uint64
	outstanding atomic.Int64
	onChange    func(outstandingBytes int64)
}

// NewBytePool creates a pool. onChange, if non-nil, is called with the new
// outstanding byte count after every Get and Put.
func NewBytePool(onChange func(outstandingBytes int64)) *BytePool {
	p := &BytePool{onChange: onChange}
	for i := range p.classes {
		size := 1 << (minClassShift + i)
		p.classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

func classFor(n int) int {
	for i := 0; i < numClasses; i++ {
		if n <= 1<<(minClassShift+i) {
			return i
		}
	}
	return -1
}

// Copy returns a pool-backed copy of src. The caller owns it until Put.
func (p *BytePool) Copy(src []byte) []byte {
	buf := p.Get(len(src))
	copy(buf, src)
	return buf
}

// Get returns a slice of length n.
func (p *BytePool) Get(n int) []byte {
	var buf []byte
	if c := classFor(n); c >= 0 {
		buf = (*p.classes[c].Get().(*[]byte))[:n]
	} else {
		buf = make([]byte, n)
	}
	p.gets.Add(1)
	p.account(int64(n))
	return buf
}

// Put releases buf. Each buffer from Get must be released exactly once.
func (p *BytePool) Put(buf []byte) {
	p.puts.Add(1)
	p.account(-int64(len(buf)))
	c := cap(buf)
	if c >= 1<<minClassShift && c <= 1<<maxClassShift && c&(c-1) == 0 {
		full := buf[:c]
		p.classes[classFor(c)].Put(&full)
	}
}

func (p *BytePool) account(delta int64) {
	v := p.outstanding.Add(delta)
	if p.onChange != nil {
		p.onChange(v)
	}
}

// Stats returns current accounting.
func (p *BytePool) Stats() Stats {
	return Stats{
		Gets:             p.gets.Load(),
		Puts:             p.puts.Load(),
		OutstandingBytes: p.outstanding.Load(),
	}
}
