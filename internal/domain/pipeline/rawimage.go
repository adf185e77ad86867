// Package pipeline runs the periodic fetch/process/broadcast loop and owns
// the shared result stream its subscribers consume.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// bufPool recycles frame buffers between rounds so steady-state operation
// does not allocate a fresh megabyte every tick.
var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 1<<20)
		return &b
	},
}

// RawImage is one fetched frame with explicit reference counting. Each
// processor retains the frame for the duration of its pass; the last release
// returns the buffer to the pool.
type RawImage struct {
	data      []byte
	buf       *[]byte
	refs      atomic.Int32
	sequence  int64
	fetchedAt time.Time
}

// NewRawImage copies the payload into a pooled buffer and starts the
// reference count at refs.
func NewRawImage(payload []byte, sequence int64, refs int32) *RawImage {
	buf := bufPool.Get().(*[]byte)
	data := append((*buf)[:0], payload...)

	img := &RawImage{
		data:      data,
		buf:       buf,
		sequence:  sequence,
		fetchedAt: time.Now(),
	}
	img.refs.Store(refs)
	return img
}

// Data returns the frame bytes. The slice is only valid while the caller
// holds a reference.
func (r *RawImage) Data() []byte { return r.data }

// Len returns the payload size in bytes.
func (r *RawImage) Len() int { return len(r.data) }

// Sequence returns the round number this frame belongs to.
func (r *RawImage) Sequence() int64 { return r.sequence }

// FetchedAt returns when the frame was downloaded.
func (r *RawImage) FetchedAt() time.Time { return r.fetchedAt }

// Retain adds a reference.
func (r *RawImage) Retain() { r.refs.Add(1) }

// Leak detaches the pooled buffer so the final Release lets it be garbage
// collected instead of recycled. Used when a consumer keeps the raw bytes
// past the round.
func (r *RawImage) Leak() { r.buf = nil }

// Release drops a reference. The final release recycles the buffer; using
// the image afterwards is a bug.
func (r *RawImage) Release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	buf := r.buf
	r.buf = nil
	r.data = nil
	if buf != nil {
		*buf = (*buf)[:0]
		bufPool.Put(buf)
	}
}
