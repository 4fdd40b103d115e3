package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	assert.Nil(t, b.All())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, b.All())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
}

func TestBufferUpdateNewestFirst(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Add(i)
	}

	var seen []int
	b.Update(func(v *int) bool {
		seen = append(seen, *v)
		if *v == 5 {
			*v = 50
			return true
		}
		return false
	})
	assert.Equal(t, []int{6, 5}, seen)
	assert.Equal(t, []int{3, 4, 50, 6}, b.All())
}

func TestBufferClear(t *testing.T) {
	b := New[string](0)
	b.Add("a")
	b.Add("b")
	assert.Equal(t, []string{"b"}, b.All())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	b.Add("c")
	assert.Equal(t, []string{"c"}, b.All())
}
