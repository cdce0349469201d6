package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_SubscribeReceivesCurrentValue(t *testing.T) {
	v := NewValue(3)

	var got []int
	unsubscribe := v.Subscribe(func(x int) { got = append(got, x) })
	defer unsubscribe()

	assert.Equal(t, []int{3}, got)
}

func TestValue_SetNotifiesInOrder(t *testing.T) {
	v := NewValue("a")

	var got []string
	unsubscribe := v.Subscribe(func(x string) { got = append(got, x) })
	defer unsubscribe()

	v.Set("b")
	v.Set("c")

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, "c", v.Get())
}

func TestValue_UnsubscribeStopsUpdates(t *testing.T) {
	v := NewValue(0)

	calls := 0
	unsubscribe := v.Subscribe(func(int) { calls++ })
	assert.Equal(t, 1, v.Listeners())

	unsubscribe()
	unsubscribe() // second call is a no-op
	v.Set(1)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, v.Listeners())
}

func TestValue_Update(t *testing.T) {
	v := NewValue(10)
	v.Update(func(x int) int { return x + 5 })
	assert.Equal(t, 15, v.Get())
}

func TestValue_ConcurrentSet(t *testing.T) {
	v := NewValue(0)

	var mu sync.Mutex
	seen := 0
	unsubscribe := v.Subscribe(func(int) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v.Set(n)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 51, seen)
}

func TestMailbox_DrainPreservesOrder(t *testing.T) {
	m := NewMailbox[int]()
	m.Put(1)
	m.Put(2)
	m.Put(3)

	<-m.Ready()
	assert.Equal(t, []int{1, 2, 3}, m.Drain())
	assert.Empty(t, m.Drain())
}
