package ordidx

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/haspelj/ordidx/internal/arena"
)

func TestZeroItemLogic(t *testing.T) {
	idx := Open()
	defer idx.Close()
	idx.Truncate()

	out := make([]byte, MaxKeyLen)
	if idx.Items() != 0 {
		t.Fatalf("Items() = %d, want 0", idx.Items())
	}
	if idx.Find(FromString("K")) != nil {
		t.Fatal("Find should be nil on an empty index")
	}
	if r, _ := idx.Next(FromString("K"), out); r != nil {
		t.Fatal("Next should be nil on an empty index")
	}
	if r, _ := idx.Next(nil, out); r != nil {
		t.Fatal("Next(nil) should be nil on an empty index")
	}
	if r, _ := idx.Prev(FromString("K"), out); r != nil {
		t.Fatal("Prev should be nil on an empty index")
	}
	if r, _ := idx.Prev(nil, out); r != nil {
		t.Fatal("Prev(nil) should be nil on an empty index")
	}
	if err := idx.Compress(); err != nil {
		t.Fatalf("Compress on an empty index should succeed, got %v", err)
	}
	if idx.Items() != 0 {
		t.Fatalf("Items() = %d after compressing empty, want 0", idx.Items())
	}
	if idx.Find(FromString("K")) != nil {
		t.Fatal("Find should still be nil after compressing an empty index")
	}
}

func TestSingleItemLogic(t *testing.T) {
	idx := Open()
	defer idx.Close()
	idx.Truncate()

	rec, err := idx.Update(FromString("B"))
	if err != nil {
		t.Fatal(err)
	}
	if idx.Items() != 1 {
		t.Fatalf("Items() = %d, want 1", idx.Items())
	}
	*rec = 123

	out := make([]byte, MaxKeyLen)
	checkStable := func(phase string) {
		t.Helper()
		if idx.Find(FromString("A")) != nil {
			t.Fatalf("[%s] Find(A) should be nil", phase)
		}
		if r, _ := idx.Next(FromString("B"), out); r != nil {
			t.Fatalf("[%s] Next(B) should be nil", phase)
		}
		if r, _ := idx.Prev(FromString("A"), out); r != nil {
			t.Fatalf("[%s] Prev(A) should be nil", phase)
		}
		r := idx.Find(FromString("B"))
		if r == nil || *r != 123 {
			t.Fatalf("[%s] Find(B) = %v, want 123", phase, r)
		}
		check := func(name string, got *uint64, key []byte) {
			t.Helper()
			if got == nil || *got != 123 || string(key) != "B" {
				t.Fatalf("[%s] %s = %v %q, want 123 \"B\"", phase, name, got, key)
			}
		}
		r, k := idx.Next(nil, out)
		check("Next(nil)", r, k)
		r, k = idx.Prev(nil, out)
		check("Prev(nil)", r, k)
		r, k = idx.Next(FromString(""), out)
		check(`Next("")`, r, k)
		r, k = idx.Prev(FromString(""), out)
		check(`Prev("")`, r, k)
		r, k = idx.Next(FromString("A"), out)
		check("Next(A)", r, k)
		r, k = idx.Prev(FromString("C"), out)
		check("Prev(C)", r, k)
	}
	checkStable("mutable")

	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}
	if idx.Items() != 1 {
		t.Fatalf("Items() = %d after compress, want 1", idx.Items())
	}
	checkStable("compressed")
}

func TestTwoItemLogic(t *testing.T) {
	idx := Open()
	defer idx.Close()
	idx.Truncate()

	recA, err := idx.Update(FromString("A"))
	if err != nil {
		t.Fatal(err)
	}
	*recA = 123
	recC, err := idx.Update(FromString("C"))
	if err != nil {
		t.Fatal(err)
	}
	*recC = 321

	if r := idx.Find(FromString("A")); r == nil || *r != 123 {
		t.Fatalf("Find(A) = %v, want 123", r)
	}
	if r := idx.Find(FromString("C")); r == nil || *r != 321 {
		t.Fatalf("Find(C) = %v, want 321", r)
	}
	if idx.Find(FromString("B")) != nil {
		t.Fatal("Find(B) should be nil")
	}

	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}
	if idx.Items() != 2 {
		t.Fatalf("Items() = %d, want 2", idx.Items())
	}

	out := make([]byte, MaxKeyLen)
	check := func(name string, want uint64, wantKey string, got *uint64, gotKey []byte) {
		t.Helper()
		if got == nil || *got != want || string(gotKey) != wantKey {
			t.Fatalf("%s = %v %q, want %d %q", name, got, gotKey, want, wantKey)
		}
	}
	r, k := idx.Next(nil, out)
	check("Next(nil)", 123, "A", r, k)
	r, k = idx.Prev(nil, out)
	check("Prev(nil)", 321, "C", r, k)
	r, k = idx.Next(FromString("B"), out)
	check("Next(B)", 321, "C", r, k)
	r, k = idx.Prev(FromString("B"), out)
	check("Prev(B)", 123, "A", r, k)
}

// TestSequentialUpdateFindCompress rehearses the spec's large-scale
// scenario (sequential insert, sequential find, random find, compress,
// re-verify, full next/prev traversal) at a size fast enough for routine
// test runs. TestFullScaleBIST below exercises the same scenario at the
// full documented scale and is skipped under -short.
func TestSequentialUpdateFindCompress(t *testing.T) {
	runBISTScenario(t, 5000)
}

func TestFullScaleBIST(t *testing.T) {
	if testing.Short() {
		t.Skip("full-scale BIST rehearsal skipped in -short mode")
	}
	runBISTScenario(t, 1_000_000)
}

func runBISTScenario(t *testing.T, n int) {
	t.Helper()
	idx := Open()
	defer idx.Close()
	idx.Truncate()

	for i := 0; i < n; i++ {
		key := FromString(fmt.Sprintf("k:%012d", i))
		rec, err := idx.Update(key)
		if err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
		*rec = uint64(i + 1)
		if got := idx.Find(key); got == nil || *got != uint64(i+1) {
			t.Fatalf("Find(%d) immediately after Update: got %v, want %d", i, got, i+1)
		}
		if idx.Items() != uint64(i+1) {
			t.Fatalf("Items() = %d after %d inserts, want %d", idx.Items(), i+1, i+1)
		}
	}

	for i := 0; i < n; i++ {
		key := FromString(fmt.Sprintf("k:%012d", i))
		if got := idx.Find(key); got == nil || *got != uint64(i+1) {
			t.Fatalf("sequential find(%d): got %v, want %d", i, got, i+1)
		}
	}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		j := rnd.Intn(n)
		key := FromString(fmt.Sprintf("k:%012d", j))
		if got := idx.Find(key); got == nil || *got != uint64(j+1) {
			t.Fatalf("random find(%d): got %v, want %d", j, got, j+1)
		}
	}

	if err := idx.Compress(); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if idx.Items() != uint64(n) {
		t.Fatalf("Items() = %d after compress, want %d", idx.Items(), n)
	}

	for i := 0; i < n; i++ {
		key := FromString(fmt.Sprintf("k:%012d", i))
		if got := idx.Find(key); got == nil || *got != uint64(i+1) {
			t.Fatalf("post-compress sequential find(%d): got %v, want %d", i, got, i+1)
		}
	}
	for i := 0; i < n; i++ {
		j := rnd.Intn(n)
		key := FromString(fmt.Sprintf("k:%012d", j))
		if got := idx.Find(key); got == nil || *got != uint64(j+1) {
			t.Fatalf("post-compress random find(%d): got %v, want %d", j, got, j+1)
		}
	}

	out := make([]byte, MaxKeyLen)
	var cur []byte
	for i := 0; i < n; i++ {
		rec, key := idx.Next(cur, out)
		want := fmt.Sprintf("k:%012d", i)
		if rec == nil || *rec != uint64(i+1) || string(key) != want {
			t.Fatalf("next-find at %d: got %v %q, want %d %q", i, rec, key, i+1, want)
		}
		cur = append(cur[:0], key...)
	}
	if r, _ := idx.Next(cur, out); r != nil {
		t.Fatal("expected no successor past the last key")
	}

	cur = nil
	for i := n - 1; i >= 0; i-- {
		rec, key := idx.Prev(cur, out)
		want := fmt.Sprintf("k:%012d", i)
		if rec == nil || *rec != uint64(i+1) || string(key) != want {
			t.Fatalf("prev-find at %d: got %v %q, want %d %q", i, rec, key, i+1, want)
		}
		cur = append(cur[:0], key...)
	}
	if r, _ := idx.Prev(cur, out); r != nil {
		t.Fatal("expected no predecessor before the first key")
	}
}

func TestFindEmptyKeyOnCompressedIndex(t *testing.T) {
	idx := Open()
	defer idx.Close()

	if _, err := idx.Update(FromString("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Update(FromString("b")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}

	if idx.Find(Key(nil)) != nil {
		t.Fatal("Find(nil) on a compressed, non-empty index should be nil, not a crash or a match")
	}
	if idx.Find(Key{}) != nil {
		t.Fatal("Find(Key{}) on a compressed, non-empty index should be nil, not a crash or a match")
	}
}

func TestUpdateRejectsInvalidKeys(t *testing.T) {
	idx := Open()
	defer idx.Close()

	cases := []struct {
		name string
		key  Key
	}{
		{"empty", Key(nil)},
		{"embedded NUL", Key([]byte{'a', 0, 'b'})},
		{"too long", func() Key {
			b := make([]byte, MaxKeyLen)
			for i := range b {
				b[i] = 'x'
			}
			return Key(b)
		}()},
	}
	for _, c := range cases {
		if _, err := idx.Update(c.key); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: got err %v, want ErrInvalidArgument", c.name, err)
		}
	}
}

func TestUpdateOnCompressedIndexFails(t *testing.T) {
	idx := Open()
	defer idx.Close()
	if _, err := idx.Update(FromString("a")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Update(FromString("b")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Update on a compressed index: got err %v, want ErrInvalidState", err)
	}
}

func TestCompressTwiceFails(t *testing.T) {
	idx := Open()
	defer idx.Close()
	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}
	if err := idx.Compress(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Compress: got err %v, want ErrInvalidState", err)
	}
}

func TestTruncateFromEveryState(t *testing.T) {
	idx := Open()
	defer idx.Close()

	idx.Truncate() // from Empty
	if idx.Items() != 0 {
		t.Fatal("expected Items() == 0 after truncating an already-empty index")
	}

	if _, err := idx.Update(FromString("a")); err != nil {
		t.Fatal(err)
	}
	idx.Truncate() // from Mutable
	if idx.Items() != 0 {
		t.Fatal("expected Items() == 0 after truncating a mutable index")
	}

	if _, err := idx.Update(FromString("a")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Compress(); err != nil {
		t.Fatal(err)
	}
	idx.Truncate() // from Compressed
	if idx.Items() != 0 {
		t.Fatal("expected Items() == 0 after truncating a compressed index")
	}
	if _, err := idx.Update(FromString("a")); err != nil {
		t.Fatalf("Update after truncating a compressed index should succeed, got %v", err)
	}
}

func TestOutOfMemoryLeavesIndexIntact(t *testing.T) {
	budget := 2048 // smaller than one node page, so the first Update already fails
	idx := OpenWithAllocator(arena.NewBoundedAllocator(budget))
	defer idx.Close()

	inserted := 0
	var lastErr error
	for i := 0; i < 100_000; i++ {
		key := FromString(fmt.Sprintf("k%06d", i))
		if _, err := idx.Update(key); err != nil {
			lastErr = err
			break
		}
		inserted++
	}
	if lastErr == nil {
		t.Fatal("expected a bounded allocator to eventually run out of budget")
	}
	if !errors.Is(lastErr, ErrOutOfMemory) {
		t.Fatalf("got err %v, want ErrOutOfMemory", lastErr)
	}
	if idx.Items() != uint64(inserted) {
		t.Fatalf("Items() = %d, want %d (index must retain everything inserted before the failure)", idx.Items(), inserted)
	}
	for i := 0; i < inserted; i++ {
		key := FromString(fmt.Sprintf("k%06d", i))
		if idx.Find(key) == nil {
			t.Fatalf("key %d missing after a later out-of-memory Update", i)
		}
	}
}

func TestCompressOutOfMemoryLeavesTreeIntact(t *testing.T) {
	idx := Open()
	defer idx.Close()
	for i := 0; i < 10; i++ {
		if _, err := idx.Update(FromString(fmt.Sprintf("k%02d", i))); err != nil {
			t.Fatal(err)
		}
	}
	// Swap in a budget too small to build the succinct trie and observe
	// that Compress fails without disturbing the existing mutable tree.
	idx.alloc = arena.NewBoundedAllocator(1)
	if err := idx.Compress(); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Compress: got err %v, want ErrOutOfMemory", err)
	}
	if idx.Items() != 10 {
		t.Fatalf("Items() = %d after a failed Compress, want 10 (tree must survive)", idx.Items())
	}
	for i := 0; i < 10; i++ {
		if idx.Find(FromString(fmt.Sprintf("k%02d", i))) == nil {
			t.Fatalf("key %d missing after a failed Compress", i)
		}
	}
}
