package store

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tsurube/tsurube/internal/model"
	"github.com/tsurube/tsurube/internal/stats"
)

var (
	ErrNonNumeric = errors.New("cannot increment or decrement non-numeric value")
	ErrOverflow   = errors.New("increment or decrement overflow")
)

// DefaultBucketCount is prime so djb2 values spread evenly across buckets.
const DefaultBucketCount = 10007

// bucket is one shard of the table. All reads and writes of entries happen
// while holding mu.
type bucket struct {
	mu      sync.Mutex
	entries map[string]*model.Entry
}

// Store is a fixed array of buckets. A key always maps to the same bucket,
// so operations on the same key serialize on that bucket's lock while
// operations on different buckets run fully concurrent. The bucket count
// never changes after New; there is no resizing and no eviction.
type Store struct {
	buckets []bucket
	stats   *stats.Counters
	nextCAS atomic.Uint64
}

func New(bucketCount int, st *stats.Counters) *Store {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	if st == nil {
		st = &stats.Counters{}
	}

	s := &Store{
		buckets: make([]bucket, bucketCount),
		stats:   st,
	}
	for i := range s.buckets {
		s.buckets[i].entries = make(map[string]*model.Entry)
	}
	return s
}

// Stats returns the counters this store reports into.
func (s *Store) Stats() *stats.Counters {
	return s.stats
}

func (s *Store) bucketFor(key string) *bucket {
	return &s.buckets[djb2(key)%uint64(len(s.buckets))]
}

// djb2 is the classic hash*33+c string hash.
func djb2(key string) uint64 {
	h := uint64(5381)
	for i := 0; i < len(key); i++ {
		h = h*33 + uint64(key[i])
	}
	return h
}

// Get returns a copy of the live entry for key. An expired entry is removed
// and reported as absent.
func (s *Store) Get(key string) (*model.Entry, bool) {
	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	if isExpired(e, nowUnix()) {
		s.removeLocked(b, e)
		return nil, false
	}
	return cloneEntry(e), true
}

// Set is an unconditional upsert.
func (s *Store) Set(key string, flags uint32, exptime int64, value []byte) {
	expUnix := normalizeExptime(exptime, nowUnix())

	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	s.upsertLocked(b, key, flags, value, expUnix)
}

// Add stores only if key is absent or expired.
func (s *Store) Add(key string, flags uint32, exptime int64, value []byte) bool {
	now := nowUnix()

	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok {
		if !isExpired(e, now) {
			return false
		}
		s.removeLocked(b, e)
	}
	s.upsertLocked(b, key, flags, value, normalizeExptime(exptime, now))
	return true
}

// Replace stores only if key is present and not expired.
func (s *Store) Replace(key string, flags uint32, exptime int64, value []byte) bool {
	now := nowUnix()

	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return false
	}
	if isExpired(e, now) {
		s.removeLocked(b, e)
		return false
	}
	s.upsertLocked(b, key, flags, value, normalizeExptime(exptime, now))
	return true
}

// Append concatenates suffix after the existing value, keeping the entry's
// flags and expiry.
func (s *Store) Append(key string, suffix []byte) bool {
	return s.concat(key, suffix, false)
}

// Prepend concatenates prefix before the existing value, keeping the
// entry's flags and expiry.
func (s *Store) Prepend(key string, prefix []byte) bool {
	return s.concat(key, prefix, true)
}

func (s *Store) concat(key string, data []byte, before bool) bool {
	now := nowUnix()

	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return false
	}
	if isExpired(e, now) {
		s.removeLocked(b, e)
		return false
	}

	merged := make([]byte, 0, len(e.Value)+len(data))
	if before {
		merged = append(append(merged, data...), e.Value...)
	} else {
		merged = append(append(merged, e.Value...), data...)
	}
	s.upsertLocked(b, key, e.Flags, merged, e.ExpUnix)
	return true
}

// Delete removes key. An expired entry counts as absent.
func (s *Store) Delete(key string) bool {
	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return false
	}
	if isExpired(e, nowUnix()) {
		s.removeLocked(b, e)
		return false
	}
	s.removeLocked(b, e)
	return true
}

// Incr adds delta to a numeric value. A missing or expired key is created
// holding delta. The entry's flags and expiry survive the rewrite.
func (s *Store) Incr(key string, delta uint64) (uint64, error) {
	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := nowUnix()
	e, ok := b.entries[key]
	if ok && isExpired(e, now) {
		s.removeLocked(b, e)
		ok = false
	}
	if !ok {
		s.upsertLocked(b, key, 0, []byte(strconv.FormatUint(delta, 10)), 0)
		return delta, nil
	}

	cur, err := parseUint(e.Value)
	if err != nil {
		return 0, ErrNonNumeric
	}
	if cur > math.MaxUint64-delta {
		return 0, ErrOverflow
	}
	next := cur + delta
	s.upsertLocked(b, key, e.Flags, []byte(strconv.FormatUint(next, 10)), e.ExpUnix)
	return next, nil
}

// Decr subtracts delta from a numeric value, clamping at zero. A missing or
// expired key is created holding zero.
func (s *Store) Decr(key string, delta uint64) (uint64, error) {
	b := s.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := nowUnix()
	e, ok := b.entries[key]
	if ok && isExpired(e, now) {
		s.removeLocked(b, e)
		ok = false
	}
	if !ok {
		s.upsertLocked(b, key, 0, []byte("0"), 0)
		return 0, nil
	}

	cur, err := parseUint(e.Value)
	if err != nil {
		return 0, ErrNonNumeric
	}

	var next uint64
	if delta >= cur {
		next = 0
	} else {
		next = cur - delta
	}
	s.upsertLocked(b, key, e.Flags, []byte(strconv.FormatUint(next, 10)), e.ExpUnix)
	return next, nil
}

// FlushAll clears every bucket, taking each lock in turn. Writers to
// buckets not yet cleared may land entries that survive the flush; this is
// a best-effort clear, not a snapshot.
func (s *Store) FlushAll() {
	for i := range s.buckets {
		b := &s.buckets[i]
		b.mu.Lock()
		for _, e := range b.entries {
			s.stats.CurrItems.Add(-1)
			s.stats.Bytes.Add(-e.Size)
		}
		b.entries = make(map[string]*model.Entry)
		b.mu.Unlock()
	}
}

func (s *Store) upsertLocked(b *bucket, key string, flags uint32, value []byte, expUnix int64) {
	size := int64(len(value))
	if prev, ok := b.entries[key]; ok {
		s.stats.Bytes.Add(size - prev.Size)
	} else {
		s.stats.CurrItems.Add(1)
		s.stats.Bytes.Add(size)
	}

	b.entries[key] = &model.Entry{
		Key:     key,
		Value:   cloneBytes(value),
		Flags:   flags,
		Size:    size,
		CAS:     s.nextCAS.Add(1),
		ExpUnix: expUnix,
	}
	s.stats.TotalItems.Add(1)
}

func (s *Store) removeLocked(b *bucket, e *model.Entry) {
	delete(b.entries, e.Key)
	s.stats.CurrItems.Add(-1)
	s.stats.Bytes.Add(-e.Size)
}

func parseUint(value []byte) (uint64, error) {
	if len(value) == 0 {
		return 0, errors.New("empty value")
	}
	return strconv.ParseUint(string(value), 10, 64)
}

func cloneEntry(e *model.Entry) *model.Entry {
	return &model.Entry{
		Key:     e.Key,
		Value:   cloneBytes(e.Value),
		Flags:   e.Flags,
		Size:    e.Size,
		CAS:     e.CAS,
		ExpUnix: e.ExpUnix,
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
