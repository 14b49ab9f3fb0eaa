package bufpool

import (
	"sync"
	"testing"
)

func TestGetReturnsRequestedLength(t *testing.T) {
	sizes := []int{1, 100, DefaultSmallSize, DefaultSmallSize + 1, DefaultMediumSize, DefaultLargeSize}
	for _, size := range sizes {
		buf := Get(size)
		if len(buf) != size {
			t.Errorf("Get(%d): len = %d", size, len(buf))
		}
		Put(buf)
	}
}

func TestOversizedNotPooled(t *testing.T) {
	size := DefaultLargeSize + 1
	buf := Get(size)
	if len(buf) != size {
		t.Fatalf("len = %d, want %d", len(buf), size)
	}
	if cap(buf) != size {
		t.Errorf("oversized buffer should be exact allocation, cap = %d", cap(buf))
	}
	Put(buf) // no-op, must not panic
}

func TestPutNil(t *testing.T) {
	Put(nil)
}

func TestCustomTiers(t *testing.T) {
	p := NewPool(&Config{SmallSize: 8, MediumSize: 16, LargeSize: 32})

	buf := p.Get(10)
	if len(buf) != 10 {
		t.Fatalf("len = %d", len(buf))
	}
	if cap(buf) != 16 {
		t.Errorf("10-byte request should come from the 16-byte tier, cap = %d", cap(buf))
	}
	p.Put(buf)
}

func TestReuseAcrossGoroutines(t *testing.T) {
	p := NewPool(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := p.Get(1024)
				buf[0] = byte(j)
				p.Put(buf)
			}
		}()
	}
	wg.Wait()
}
