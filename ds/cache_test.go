package ds

import (
	"fmt"
	"sync"
	"testing"
)

type cachedRun struct {
	RunId  int64
	Status string
}

func TestLruCacheGetPut(t *testing.T) {
	c := NewLruCache[int64, cachedRun](2)
	if _, exists := c.Get(1); exists {
		t.Error("Expected empty cache")
	}

	c.Put(1, cachedRun{1, "RUNNING"})
	c.Put(1, cachedRun{1, "SUCCESS"})
	run, exists := c.Get(1)
	if !exists {
		t.Fatal("Expected run 1 in the cache")
	}
	if run.Status != "SUCCESS" {
		t.Errorf("Expected updated status SUCCESS, got: %s", run.Status)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 item after update, got: %d", c.Len())
	}
}

func TestLruCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLruCache[int64, cachedRun](2)
	c.Put(1, cachedRun{1, "SUCCESS"})
	c.Put(2, cachedRun{2, "FAILED"})
	c.Get(1) // 2 is now the least recently used
	c.Put(3, cachedRun{3, "SUCCESS"})

	if _, exists := c.Get(2); exists {
		t.Error("Expected run 2 to be evicted")
	}
	for _, runId := range []int64{1, 3} {
		if _, exists := c.Get(runId); !exists {
			t.Errorf("Expected run %d to be in the cache", runId)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 items, got: %d", c.Len())
	}
}

func TestLruCacheRemove(t *testing.T) {
	c := NewLruCache[string, int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Remove("a")
	c.Remove("not-there")
	if _, exists := c.Get("a"); exists {
		t.Error("Expected removed key to be gone")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 item, got: %d", c.Len())
	}
	c.Put("c", 3)
	c.Put("d", 4)
	if _, exists := c.Get("b"); !exists {
		t.Error("Expected b to stay in the cache after removal freed a slot")
	}
}

func TestLruCacheNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		c := NewLruCache[int, int](capacity)
		for i := 0; i < 10; i++ {
			c.Put(i, i)
		}
		if c.Len() != 1 {
			t.Errorf("Expected capacity %d to hold single item, got: %d",
				capacity, c.Len())
		}
		if v, exists := c.Get(9); !exists || v != 9 {
			t.Errorf("Expected the latest item to stay, got: %d, %v", v, exists)
		}
	}
}

func TestLruCacheConcurrent(t *testing.T) {
	const capacity = 50
	c := NewLruCache[string, int](capacity)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				c.Put(key, i)
				c.Get(key)
				if i%3 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > capacity {
		t.Errorf("Expected at most %d items, got: %d", capacity, c.Len())
	}
}
