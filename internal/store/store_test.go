package store

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New(0, nil)

	s.Set("k", 12, 0, []byte("hello"))

	e, ok := s.Get("k")
	if !ok {
		t.Fatal("missing key after set")
	}
	if string(e.Value) != "hello" {
		t.Fatalf("unexpected value: %q", string(e.Value))
	}
	if e.Flags != 12 {
		t.Fatalf("unexpected flags: %d", e.Flags)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(0, nil)
	s.Set("k", 0, 0, []byte("abc"))

	e, ok := s.Get("k")
	if !ok {
		t.Fatal("missing key")
	}
	e.Value[0] = 'X'

	e2, _ := s.Get("k")
	if string(e2.Value) != "abc" {
		t.Fatalf("stored value was mutated through a Get result: %q", string(e2.Value))
	}
}

func TestAddOnlyWhenAbsent(t *testing.T) {
	s := New(0, nil)

	if !s.Add("k", 0, 0, []byte("v1")) {
		t.Fatal("add on absent key should store")
	}
	if s.Add("k", 0, 0, []byte("v2")) {
		t.Fatal("add on present key should not store")
	}

	e, ok := s.Get("k")
	if !ok || string(e.Value) != "v1" {
		t.Fatalf("add overwrote existing value: %v %q", ok, string(e.Value))
	}
}

func TestReplaceOnlyWhenPresent(t *testing.T) {
	s := New(0, nil)

	if s.Replace("k", 0, 0, []byte("v")) {
		t.Fatal("replace on absent key should not store")
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("replace on absent key must not create an entry")
	}

	s.Set("k", 7, 0, []byte("old"))
	if !s.Replace("k", 9, 0, []byte("new")) {
		t.Fatal("replace on present key should store")
	}
	e, _ := s.Get("k")
	if string(e.Value) != "new" || e.Flags != 9 {
		t.Fatalf("unexpected entry after replace: %q %d", string(e.Value), e.Flags)
	}
}

func TestAppendPrependOrdering(t *testing.T) {
	s := New(0, nil)

	s.Set("k", 3, 0, []byte("B"))
	if !s.Append("k", []byte("C")) {
		t.Fatal("append on present key should store")
	}
	if !s.Prepend("k", []byte("A")) {
		t.Fatal("prepend on present key should store")
	}

	e, _ := s.Get("k")
	if string(e.Value) != "ABC" {
		t.Fatalf("unexpected value: %q", string(e.Value))
	}
	if e.Flags != 3 {
		t.Fatalf("append/prepend must keep flags: %d", e.Flags)
	}

	if s.Append("missing", []byte("x")) {
		t.Fatal("append on absent key should not store")
	}
	if s.Prepend("missing", []byte("x")) {
		t.Fatal("prepend on absent key should not store")
	}
}

func TestDeleteSemantics(t *testing.T) {
	s := New(0, nil)

	s.Set("k", 0, 0, []byte("v"))
	if !s.Delete("k") {
		t.Fatal("delete on present key should report deleted")
	}
	if s.Delete("k") {
		t.Fatal("delete on absent key should report not found")
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("key survived delete")
	}
}

func TestNegativeExptimeExpiresImmediately(t *testing.T) {
	s := New(0, nil)

	s.Set("k", 0, -1, []byte("v"))
	if _, ok := s.Get("k"); ok {
		t.Fatal("negative exptime must never be visible")
	}
}

func TestRelativeExptime(t *testing.T) {
	s := New(0, nil)
	now := int64(1000)
	restore := SetNowUnixForTest(func() int64 { return now })
	defer restore()

	s.Set("k", 0, 5, []byte("v"))
	if _, ok := s.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = 1005
	if _, ok := s.Get("k"); ok {
		t.Fatal("entry should be expired after its TTL")
	}
}

func TestAbsoluteExptime(t *testing.T) {
	s := New(0, nil)
	now := int64(3_000_000)
	restore := SetNowUnixForTest(func() int64 { return now })
	defer restore()

	// Above the 30-day threshold, exptime is an absolute Unix timestamp.
	s.Set("k", 0, 3_000_010, []byte("v"))
	if _, ok := s.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = 3_000_010
	if _, ok := s.Get("k"); ok {
		t.Fatal("entry should be expired at its absolute timestamp")
	}
}

func TestAddTreatsExpiredAsAbsent(t *testing.T) {
	s := New(0, nil)
	now := int64(100)
	restore := SetNowUnixForTest(func() int64 { return now })
	defer restore()

	s.Set("k", 0, 10, []byte("old"))
	now = 120

	if !s.Add("k", 0, 0, []byte("new")) {
		t.Fatal("add should treat an expired entry as absent")
	}
	e, ok := s.Get("k")
	if !ok || string(e.Value) != "new" {
		t.Fatalf("unexpected entry after add: %v %q", ok, string(e.Value))
	}
}

func TestReplaceTreatsExpiredAsAbsent(t *testing.T) {
	s := New(0, nil)
	now := int64(100)
	restore := SetNowUnixForTest(func() int64 { return now })
	defer restore()

	s.Set("k", 0, 10, []byte("old"))
	now = 120

	if s.Replace("k", 0, 0, []byte("new")) {
		t.Fatal("replace should treat an expired entry as absent")
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("expired entry should have been removed by the access")
	}
}

func TestFlushAll(t *testing.T) {
	s := New(0, nil)
	for i := 0; i < 100; i++ {
		s.Set(fmt.Sprintf("k%d", i), 0, 0, []byte("v"))
	}

	s.FlushAll()

	for i := 0; i < 100; i++ {
		if _, ok := s.Get(fmt.Sprintf("k%d", i)); ok {
			t.Fatalf("k%d survived flush", i)
		}
	}
	if got := s.Stats().CurrItems.Load(); got != 0 {
		t.Fatalf("curr_items after flush: %d", got)
	}
	if got := s.Stats().Bytes.Load(); got != 0 {
		t.Fatalf("bytes after flush: %d", got)
	}
}

func TestIncrMissingCreatesKey(t *testing.T) {
	s := New(0, nil)

	v, err := s.Incr("k", 7)
	if err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if v != 7 {
		t.Fatalf("unexpected value: %d", v)
	}

	e, ok := s.Get("k")
	if !ok || string(e.Value) != "7" {
		t.Fatalf("unexpected stored value: %v %q", ok, string(e.Value))
	}
}

func TestDecrMissingCreatesZero(t *testing.T) {
	s := New(0, nil)

	v, err := s.Decr("k", 7)
	if err != nil {
		t.Fatalf("decr failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("unexpected value: %d", v)
	}
}

func TestDecrClampsAtZero(t *testing.T) {
	s := New(0, nil)
	s.Set("k", 0, 0, []byte("1"))

	v, err := s.Decr("k", 2)
	if err != nil {
		t.Fatalf("decr failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("decr should clamp at zero, got %d", v)
	}
}

func TestIncrNonNumeric(t *testing.T) {
	s := New(0, nil)
	s.Set("k", 0, 0, []byte("abc"))

	if _, err := s.Incr("k", 1); err != ErrNonNumeric {
		t.Fatalf("expected ErrNonNumeric, got: %v", err)
	}
}

func TestIncrOverflowReturnsError(t *testing.T) {
	s := New(0, nil)
	s.Set("k", 0, 0, []byte("18446744073709551615"))

	if _, err := s.Incr("k", 1); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got: %v", err)
	}
}

func TestStatsCounters(t *testing.T) {
	s := New(0, nil)

	s.Set("a", 0, 0, []byte("12345"))
	s.Set("b", 0, 0, []byte("123"))
	s.Set("a", 0, 0, []byte("1"))
	s.Delete("b")

	st := s.Stats()
	if got := st.CurrItems.Load(); got != 1 {
		t.Fatalf("curr_items: %d", got)
	}
	if got := st.TotalItems.Load(); got != 3 {
		t.Fatalf("total_items: %d", got)
	}
	if got := st.Bytes.Load(); got != 1 {
		t.Fatalf("bytes: %d", got)
	}
}

func TestConcurrentSameKeySet(t *testing.T) {
	s := New(0, nil)

	const n = 32
	values := make([][]byte, n)
	for i := range values {
		values[i] = bytes.Repeat([]byte{byte('a' + i%26)}, 64)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v []byte) {
			defer wg.Done()
			s.Set("k", 0, 0, v)
		}(values[i])
	}
	wg.Wait()

	e, ok := s.Get("k")
	if !ok {
		t.Fatal("missing key after concurrent sets")
	}
	for _, v := range values {
		if bytes.Equal(e.Value, v) {
			return
		}
	}
	t.Fatalf("value is not one of the written values: %q", string(e.Value))
}

func TestBucketMappingIsDeterministic(t *testing.T) {
	s := New(17, nil)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if s.bucketFor(key) != s.bucketFor(key) {
			t.Fatalf("bucket for %q is not stable", key)
		}
	}
}
