package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerialisesSameKey(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("order:1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.Len())
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock("a")
	unlockB := m.Lock("b")
	assert.Equal(t, 2, m.Len())
	unlockA()
	unlockB()
	assert.Equal(t, 0, m.Len())
}
