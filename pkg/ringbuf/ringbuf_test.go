package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndSnapshot(t *testing.T) {
	r := New[int](4)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 4, r.Cap())

	r.Push(1)
	r.Push(2)
	r.Push(3)
	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
}

func TestOverwriteOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())
	assert.Equal(t, 3, r.At(0))
	assert.Equal(t, 5, r.At(2))
}

func TestLast(t *testing.T) {
	tests := []struct {
		name   string
		pushes []int
		n      int
		want   []int
	}{
		{"fewer than n", []int{1, 2}, 5, []int{1, 2}},
		{"exactly n", []int{1, 2, 3}, 3, []int{1, 2, 3}},
		{"recent subset", []int{1, 2, 3, 4, 5}, 2, []int{4, 5}},
		{"zero", []int{1, 2}, 0, nil},
		{"empty ring", nil, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[int](10)
			for _, v := range tt.pushes {
				r.Push(v)
			}
			assert.Equal(t, tt.want, r.Last(tt.n))
		})
	}
}

func TestLastAfterWrap(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{6, 7}, r.Last(2))
}

func TestDoEarlyStop(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	var seen []int
	r.Do(func(v int) bool {
		seen = append(seen, v)
		return v < 3
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestReset(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	r.Reset()
	assert.Equal(t, 0, r.Len())
	r.Push("c")
	assert.Equal(t, []string{"c"}, r.Snapshot())
}

func TestAtOutOfRangePanics(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	require.Panics(t, func() { r.At(1) })
	require.Panics(t, func() { r.At(-1) })
}

func BenchmarkPush(b *testing.B) {
	r := New[int](1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Push(i)
	}
}
