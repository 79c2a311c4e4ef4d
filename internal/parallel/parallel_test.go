package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Workers: 3, MinChunk: 1}, {Workers: 64}} {
		const n = 1000
		var hits [n]atomic.Int32
		For(n, cfg, func(i int) { hits[i].Add(1) })
		for i := range hits {
			assert.Equal(t, int32(1), hits[i].Load(), "index %d with %+v", i, cfg)
		}
	}
}

func TestForEmpty(t *testing.T) {
	called := false
	For(0, DefaultConfig(), func(int) { called = true })
	For(-3, DefaultConfig(), func(int) { called = true })
	assert.False(t, called)
}
