package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig().WithWorkers(4)

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_EachIndexOnce(t *testing.T) {
	cfg := DefaultConfig().WithWorkers(3)

	seen := make([]int32, 37)
	For(len(seen), func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Sequential()

	// Sequential execution visits indices in order.
	var order []int
	For(10, func(i int) {
		order = append(order, i)
	}, cfg)

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected index %d at position %d, got %d", i, i, v)
		}
	}
}

func TestFor_Empty(t *testing.T) {
	For(0, func(_ int) {
		t.Fatal("f must not be called for n == 0")
	}, DefaultConfig())
}

func TestSum(t *testing.T) {
	for _, cfg := range []Config{Sequential(), DefaultConfig().WithWorkers(8)} {
		got := Sum(100, func(i int) float64 { return float64(i) }, cfg)
		if got != 4950 {
			t.Errorf("Expected 4950, got %v", got)
		}
	}
}

func TestWithWorkers(t *testing.T) {
	if DefaultConfig().WithWorkers(1).Enabled {
		t.Error("a single worker must disable parallelism")
	}
	if !Sequential().WithWorkers(2).Enabled {
		t.Error("two workers must enable parallelism")
	}
}
