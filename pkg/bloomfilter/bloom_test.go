package bloomfilter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndMayContain(t *testing.T) {
	f := New(1000, 0.01)

	f.Add("203.0.113.7")
	f.Add("user:mallory")

	assert.True(t, f.MayContain("203.0.113.7"))
	assert.True(t, f.MayContain("user:mallory"))
	assert.Equal(t, uint64(2), f.Added())
}

func TestEmptyFilterContainsNothing(t *testing.T) {
	f := New(1000, 0.01)

	assert.False(t, f.MayContain("203.0.113.7"))
	assert.Equal(t, uint64(0), f.Added())
	assert.Zero(t, f.FillRatio())
}

func TestNoFalseNegatives(t *testing.T) {
	f := New(5000, 0.01)

	for i := 0; i < 5000; i++ {
		f.Add(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	for i := 0; i < 5000; i++ {
		require.True(t, f.MayContain(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
}

func TestFalsePositiveRateNearTarget(t *testing.T) {
	f := New(10000, 0.01)

	for i := 0; i < 10000; i++ {
		f.Add(fmt.Sprintf("member-%d", i))
	}

	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if f.MayContain(fmt.Sprintf("stranger-%d", i)) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / probes
	assert.Less(t, rate, 0.03, "observed false positive rate %.4f", rate)
}

func TestFillRatioGrows(t *testing.T) {
	f := New(1000, 0.01)

	f.Add("a")
	low := f.FillRatio()
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("item-%d", i))
	}

	assert.Greater(t, f.FillRatio(), low)
	assert.Less(t, f.FillRatio(), 1.0)
}

func TestInvalidArgumentsFallBack(t *testing.T) {
	for _, f := range []*Filter{New(0, 0.01), New(1000, 0), New(1000, 1.5)} {
		require.NotNil(t, f)
		f.Add("x")
		assert.True(t, f.MayContain("x"))
	}
}

func TestConcurrentAccess(t *testing.T) {
	f := New(10000, 0.01)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				f.Add(key)
				f.MayContain(key)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, uint64(8*500), f.Added())
	assert.True(t, f.MayContain("g0-0"))
}
