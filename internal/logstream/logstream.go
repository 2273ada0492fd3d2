// Package logstream is a bounded ring of text lines with independent reader
// cursors. It backs the live log stream and the full log dump.
//
// Writers never block for long: when the lock is contended past the hot-path
// wait the line is dropped. Once the ring is full the oldest line is
// overwritten. A reader that falls more than Capacity lines behind is moved
// to the oldest resident line and the skipped lines are lost to it.
package logstream

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tamzrod/ncm-linkd/internal/syncx"
)

var (
	// ErrNoReaderSlot means every reader slot is in use.
	ErrNoReaderSlot = errors.New("logstream: no free reader slot")

	// ErrBusy means the lock could not be taken within the bounded wait.
	ErrBusy = errors.New("logstream: busy")
)

// ReaderID identifies a reader slot.
type ReaderID int

// Options configures a Stream. Zero fields take the defaults below.
type Options struct {
	Capacity   int
	LineMax    int
	MaxReaders int

	HotWait  time.Duration // Append, Next, Pending
	Wait     time.Duration // AllocReader, FreeReader, Len
	DumpWait time.Duration // Dump
}

const (
	DefaultCapacity   = 100
	DefaultLineMax    = 255
	DefaultMaxReaders = 4
	DefaultHotWait    = 10 * time.Millisecond
	DefaultWait       = 100 * time.Millisecond
	DefaultDumpWait   = 500 * time.Millisecond
)

type cursor struct {
	active bool
	pos    uint64
}

// Stream is the line ring. Safe for concurrent use.
type Stream struct {
	mu   *syncx.TimedMutex
	opts Options

	lines    []string
	writeIdx int
	total    uint64

	readers []cursor
}

// New returns an initialized, empty Stream.
func New(opts Options) *Stream {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.LineMax <= 0 {
		opts.LineMax = DefaultLineMax
	}
	if opts.MaxReaders <= 0 {
		opts.MaxReaders = DefaultMaxReaders
	}
	if opts.HotWait <= 0 {
		opts.HotWait = DefaultHotWait
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	if opts.DumpWait <= 0 {
		opts.DumpWait = DefaultDumpWait
	}
	return &Stream{
		mu:      syncx.NewTimedMutex(),
		opts:    opts,
		lines:   make([]string, opts.Capacity),
		readers: make([]cursor, opts.MaxReaders),
	}
}

// Reset clears the ring and deactivates every reader.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		s.lines[i] = ""
	}
	s.writeIdx = 0
	s.total = 0
	for i := range s.readers {
		s.readers[i] = cursor{}
	}
}

// Capacity returns the number of line slots.
func (s *Stream) Capacity() int { return s.opts.Capacity }

// MaxReaders returns the size of the reader pool.
func (s *Stream) MaxReaders() int { return s.opts.MaxReaders }

// Append stores line, cut to LineMax bytes on a rune boundary, overwriting the oldest line when
// the ring is full. Empty lines are ignored.
func (s *Stream) Append(line string) {
	if line == "" {
		return
	}
	line = truncate(line, s.opts.LineMax)
	if line == "" {
		return
	}
	if !s.mu.TryLockFor(s.opts.HotWait) {
		return
	}
	defer s.mu.Unlock()

	// Clone so a substring does not pin the caller's larger buffer.
	s.lines[s.writeIdx] = strings.Clone(line)
	s.writeIdx = (s.writeIdx + 1) % s.opts.Capacity
	s.total++
}

// Write implements io.Writer. p is split on newlines and every non-empty
// line is appended. It always reports len(p) so loggers never see an error.
func (s *Stream) Write(p []byte) (int, error) {
	text := string(p)
	for _, line := range strings.Split(text, "\n") {
		s.Append(strings.TrimRight(line, "\r"))
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (s *Stream) Sync() error { return nil }

// AllocReader claims a reader slot positioned at the newest line, so a new
// reader never replays history.
func (s *Stream) AllocReader() (ReaderID, error) {
	if !s.mu.TryLockFor(s.opts.Wait) {
		return -1, ErrBusy
	}
	defer s.mu.Unlock()

	for i := range s.readers {
		if !s.readers[i].active {
			s.readers[i] = cursor{active: true, pos: s.total}
			return ReaderID(i), nil
		}
	}
	return -1, ErrNoReaderSlot
}

// FreeReader releases a reader slot. Unknown ids are ignored.
func (s *Stream) FreeReader(id ReaderID) {
	if !s.valid(id) {
		return
	}
	// Freeing must not be skipped or the slot leaks; wait as long as needed.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[id] = cursor{}
}

// Next returns the reader's next unread line. ok is false when the reader
// is caught up, inactive, or the lock wait expired.
func (s *Stream) Next(id ReaderID) (line string, ok bool) {
	if !s.valid(id) {
		return "", false
	}
	if !s.mu.TryLockFor(s.opts.HotWait) {
		return "", false
	}
	defer s.mu.Unlock()

	r := &s.readers[id]
	if !r.active || r.pos >= s.total {
		return "", false
	}

	behind := s.catchUp(r)
	idx := (s.writeIdx - int(behind) + s.opts.Capacity) % s.opts.Capacity
	r.pos++
	return s.lines[idx], true
}

// Pending returns the number of lines the reader can still read; never
// more than Capacity.
func (s *Stream) Pending(id ReaderID) int {
	if !s.valid(id) {
		return 0
	}
	if !s.mu.TryLockFor(s.opts.HotWait) {
		return 0
	}
	defer s.mu.Unlock()

	r := &s.readers[id]
	if !r.active {
		return 0
	}
	return int(s.catchUp(r))
}

// catchUp moves a lagging reader to the oldest resident line and returns
// how many lines it is behind. Caller holds the lock.
func (s *Stream) catchUp(r *cursor) uint64 {
	behind := s.total - r.pos
	if capacity := uint64(s.opts.Capacity); behind > capacity {
		r.pos = s.total - capacity
		behind = capacity
	}
	return behind
}

// Len returns the number of resident lines.
func (s *Stream) Len() int {
	if !s.mu.TryLockFor(s.opts.Wait) {
		return 0
	}
	defer s.mu.Unlock()
	return s.resident()
}

// Total returns the number of lines ever appended.
func (s *Stream) Total() uint64 {
	if !s.mu.TryLockFor(s.opts.Wait) {
		return 0
	}
	defer s.mu.Unlock()
	return s.total
}

func (s *Stream) resident() int {
	if s.total < uint64(s.opts.Capacity) {
		return int(s.total)
	}
	return s.opts.Capacity
}

// Dump returns every resident line, oldest first, each followed by '\n'.
// limit bounds the output in bytes; a line that does not fit ends the dump
// and is not cut. limit <= 0 means unbounded.
func (s *Stream) Dump(limit int) string {
	if !s.mu.TryLockFor(s.opts.DumpWait) {
		return ""
	}
	defer s.mu.Unlock()

	n := s.resident()
	start := 0
	if s.total > uint64(s.opts.Capacity) {
		start = s.writeIdx
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		line := s.lines[(start+i)%s.opts.Capacity]
		if limit > 0 && b.Len()+len(line)+1 > limit {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Stream) valid(id ReaderID) bool {
	return id >= 0 && int(id) < len(s.readers)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
