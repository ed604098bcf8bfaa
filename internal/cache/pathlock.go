package cache

import "sync"

// pathLock provides mutual exclusion keyed by remote path, so that an
// Open and a Close racing on the *same* remote path never interleave
// while Opens/Closes for different paths still run concurrently
// (spec.md §5: "an implementation that wishes to permit concurrent
// dispatch must protect the table with a single mutual-exclusion region
// spanning lookup-plus-mutation"). Ported from
// backend/sftp/stringlock.go's stringLock.
type pathLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newPathLock() *pathLock {
	return &pathLock{
		locks: make(map[string]chan struct{}),
	}
}

// Lock locks on the remote path passed in.
func (l *pathLock) Lock(remotePath string) {
	l.mu.Lock()
	for {
		ch, ok := l.locks[remotePath]
		if !ok {
			break
		}
		l.mu.Unlock()
		<-ch
		l.mu.Lock()
	}
	l.locks[remotePath] = make(chan struct{})
	l.mu.Unlock()
}

// Unlock unlocks the remote path passed in. Panics if Lock wasn't
// called first for that path.
func (l *pathLock) Unlock(remotePath string) {
	l.mu.Lock()
	ch, ok := l.locks[remotePath]
	if !ok {
		panic("pathLock: Unlock before Lock")
	}
	close(ch)
	delete(l.locks, remotePath)
	l.mu.Unlock()
}
