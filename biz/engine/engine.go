package engine

import (
	"bytes"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// BufferPool hands out scratch buffers for frame and JSON assembly.
var BufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// SidecarPool runs the book manager's side effects (snapshot cache, depth
// feed, audit enqueue) so client broadcasts never wait on infra.
var SidecarPool *ants.Pool

func InitSidecarPool(size int) error {
	pool, err := ants.NewPool(size)
	if err != nil {
		return err
	}
	SidecarPool = pool
	return nil
}

// Submit schedules fn on the sidecar pool, falling back to a plain goroutine
// while the pool is not initialised (tests, early startup).
func Submit(fn func()) {
	if SidecarPool != nil {
		if err := SidecarPool.Submit(fn); err == nil {
			return
		}
	}
	go fn()
}
