package fsops

import (
	"os"
	"sync"
)

type handleKind int

const (
	handleFile handleKind = iota
	handleDir
)

// handle is the tagged variant spec.md §9 requires in place of a raw
// integer cast between file and directory descriptors: a file handle
// never aliases a directory handle's entries slice and vice versa.
type handle struct {
	kind       handleKind
	remotePath string
	file       *os.File
	entries    []string
}

// handleTable hands out uint64 handles for cgofuse's fh parameter and
// looks them back up by value. It has no relation to file descriptor
// numbers.
type handleTable struct {
	mu   sync.Mutex
	next uint64
	open map[uint64]*handle
}

func newHandleTable() *handleTable {
	return &handleTable{open: make(map[uint64]*handle)}
}

func (t *handleTable) store(h *handle) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	fh := t.next
	t.open[fh] = h
	return fh
}

func (t *handleTable) get(fh uint64) (*handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.open[fh]
	return h, ok
}

func (t *handleTable) remove(fh uint64) (*handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.open[fh]
	if ok {
		delete(t.open, fh)
	}
	return h, ok
}
