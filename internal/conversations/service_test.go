package conversations

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus("waiting"))
	assert.True(t, ValidStatus("active"))
	assert.True(t, ValidStatus("closed"))
	assert.False(t, ValidStatus("archived"))
	assert.False(t, ValidStatus(""))
}

func TestLockForIsStablePerSender(t *testing.T) {
	s := &Service{locks: make(map[int64]*sync.Mutex)}

	a1 := s.lockFor(42)
	a2 := s.lockFor(42)
	b := s.lockFor(43)

	assert.Same(t, a1, a2, "same sender shares one lock")
	assert.NotSame(t, a1, b, "different senders get different locks")
}

func TestLockForConcurrent(t *testing.T) {
	s := &Service{locks: make(map[int64]*sync.Mutex)}

	var wg sync.WaitGroup
	results := make([]*sync.Mutex, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.lockFor(7)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i])
	}
}
