// Package eventlog keeps a sticky record of critical link lifecycle events.
//
// Unlike the rolling log stream, records are never overwritten: the first
// Capacity events are kept until the process exits, and a per-type
// occurrence flag keeps answering Has correctly after the sequence is full.
package eventlog

import (
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"

	"github.com/tamzrod/ncm-linkd/internal/syncx"
)

// Record is one stored event.
type Record struct {
	// At is the time since the log was created.
	At     time.Duration
	Type   Type
	Detail string
}

// Options configures a Log. Zero fields take the defaults below.
type Options struct {
	Capacity  int
	DetailMax int
	LockWait  time.Duration
	Clock     clock.Clock
}

const (
	DefaultCapacity  = 30
	DefaultDetailMax = 63
	DefaultLockWait  = 50 * time.Millisecond
)

// Log is the sticky event log. Safe for concurrent use.
type Log struct {
	mu        *syncx.TimedMutex
	clock     clock.Clock
	start     time.Time
	capacity  int
	detailMax int
	lockWait  time.Duration

	records  []Record
	occurred [numTypes]bool
}

// New returns an initialized, empty Log.
func New(opts Options) *Log {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.DetailMax <= 0 {
		opts.DetailMax = DefaultDetailMax
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Log{
		mu:        syncx.NewTimedMutex(),
		clock:     opts.Clock,
		start:     opts.Clock.Now(),
		capacity:  opts.Capacity,
		detailMax: opts.DetailMax,
		lockWait:  opts.LockWait,
		records:   make([]Record, 0, opts.Capacity),
	}
}

// Reset clears the record sequence and the occurrence table.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0]
	l.occurred = [numTypes]bool{}
}

// Record marks typ as occurred and appends a record while there is room.
// detail is cut to DetailMax bytes. If the lock cannot be taken within the
// configured wait the event is dropped.
func (l *Log) Record(typ Type, detail string) {
	if !typ.Valid() {
		return
	}
	if !l.mu.TryLockFor(l.lockWait) {
		return
	}
	defer l.mu.Unlock()

	l.occurred[typ] = true

	if len(l.records) >= l.capacity {
		return
	}
	detail = truncate(detail, l.detailMax)
	l.records = append(l.records, Record{
		At:     l.clock.Since(l.start),
		Type:   typ,
		Detail: detail,
	})
}

// Has reports whether typ has been recorded since the last Reset.
// A lock timeout reports false.
func (l *Log) Has(typ Type) bool {
	if !typ.Valid() {
		return false
	}
	if !l.mu.TryLockFor(l.lockWait) {
		return false
	}
	defer l.mu.Unlock()
	return l.occurred[typ]
}

// Records returns a copy of the stored sequence.
func (l *Log) Records() []Record {
	if !l.mu.TryLockFor(l.lockWait) {
		return nil
	}
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Mask returns the occurrence table as a bitmask, bit i set for Type(i).
func (l *Log) Mask() uint32 {
	if !l.mu.TryLockFor(l.lockWait) {
		return 0
	}
	defer l.mu.Unlock()
	var m uint32
	for i, ok := range l.occurred {
		if ok {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Capacity returns the maximum number of stored records.
func (l *Log) Capacity() int { return l.capacity }

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
