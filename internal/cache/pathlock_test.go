package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPathLock(t *testing.T) {
	var wg sync.WaitGroup
	counter := [3]int{}
	lock := newPathLock()
	const (
		outer = 5
		inner = 20
		total = outer * inner
	)
	for k := 0; k < outer; k++ {
		for j := range counter {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				path := fmt.Sprintf("/root/%d", j)
				for i := 0; i < inner; i++ {
					lock.Lock(path)
					n := counter[j]
					time.Sleep(time.Millisecond)
					counter[j] = n + 1
					lock.Unlock(path)
				}
			}(j)
		}
	}
	wg.Wait()
	assert.Equal(t, [3]int{total, total, total}, counter)
}
