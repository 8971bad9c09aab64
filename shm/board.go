// Package shm publishes the leaderboard into a memory-mapped file.
//
// The writer follows a seqlock protocol: the header sequence is odd while
// rows are being written and even once they are complete, and Version is
// bumped after every complete write. Readers spin until they observe the same
// even sequence before and after copying.
//
// Memory layout (single mmap, 64-byte slots):
//   - header: seqlock, row count, version, timestamp, capacity
//   - rows[capacity]: relation id, ranking metric, elapsed ms, update time
package shm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/AlephTX/aleph-tx/arbmon/state"
)

const (
	SlotSize    = 64
	NameSize    = 40
	DefaultRows = 64
)

// ErrClosed is returned by Publish once the mapping is gone.
var ErrClosed = errors.New("shm: board closed")

type header struct {
	Seqlock     uint32   // 0..4
	Count       uint32   // 4..8
	Version     uint64   // 8..16
	TimestampNs int64    // 16..24
	Capacity    uint32   // 24..28
	_           [36]byte // 28..64
}

// Row is one leaderboard entry.
type Row struct {
	Name      [NameSize]byte // 0..40, NUL padded
	Score     float64        // 40..48
	ElapsedMs float64        // 48..56
	UpdatedNs int64          // 56..64
}

func (r Row) NameString() string {
	return string(bytes.TrimRight(r.Name[:], "\x00"))
}

func init() {
	if unsafe.Sizeof(header{}) != SlotSize || unsafe.Sizeof(Row{}) != SlotSize {
		panic(fmt.Sprintf("shm: slot sizes %d/%d, expected %d", unsafe.Sizeof(header{}), unsafe.Sizeof(Row{}), SlotSize))
	}
}

// Board wraps the mapped leaderboard. mu keeps Close from unmapping under a
// Publish that is still writing.
type Board struct {
	mu     sync.Mutex
	closed bool
	data   []byte
	hdr    *header
	rows   []Row
}

// NewBoard creates or truncates the file and maps it. A bare name is placed
// under /dev/shm.
func NewBoard(path string, capacity int) (*Board, error) {
	if capacity <= 0 {
		capacity = DefaultRows
	}
	if !strings.Contains(path, "/") {
		path = "/dev/shm/" + path
	}
	size := SlotSize * (capacity + 1)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	b := &Board{
		data: data,
		hdr:  (*header)(unsafe.Pointer(&data[0])),
		rows: unsafe.Slice((*Row)(unsafe.Pointer(&data[SlotSize])), capacity),
	}
	b.hdr.Capacity = uint32(capacity)
	return b, nil
}

// Publish writes the first Capacity rows of the board.
func (b *Board) Publish(_ context.Context, board state.Board) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	n := min(len(board.Rows), len(b.rows))

	seq := atomic.LoadUint32(&b.hdr.Seqlock)
	atomic.StoreUint32(&b.hdr.Seqlock, seq+1) // odd: write in progress

	for i := 0; i < n; i++ {
		s := board.Rows[i]
		r := &b.rows[i]
		r.Name = [NameSize]byte{}
		copy(r.Name[:], s.ID)
		r.Score = s.Score()
		r.ElapsedMs = s.ElapsedMs
		r.UpdatedNs = 0
		if !s.UpdatedAt.IsZero() {
			r.UpdatedNs = s.UpdatedAt.UnixNano()
		}
	}
	b.hdr.Count = uint32(n)
	b.hdr.TimestampNs = board.At.UnixNano()

	atomic.StoreUint32(&b.hdr.Seqlock, seq+2) // even: complete
	atomic.AddUint64(&b.hdr.Version, 1)
	return nil
}

// Read copies a consistent view of the rows and returns it with the version
// it belongs to. A closed board reads as empty.
func (b *Board) Read() ([]Row, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, 0
	}
	for {
		s1 := atomic.LoadUint32(&b.hdr.Seqlock)
		if s1&1 == 1 {
			runtime.Gosched()
			continue
		}
		n := min(int(b.hdr.Count), len(b.rows))
		out := make([]Row, n)
		copy(out, b.rows[:n])
		v := atomic.LoadUint64(&b.hdr.Version)
		if atomic.LoadUint32(&b.hdr.Seqlock) == s1 {
			return out, v
		}
	}
}

// Close waits for an in-flight Publish and unmaps the file. Later calls are
// no-ops.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.hdr, b.rows = nil, nil
	return syscall.Munmap(b.data)
}
