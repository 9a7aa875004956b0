// Package inflight tracks ongoing downloads so concurrent requests for the
// same file or package share one transfer instead of racing each other. All
// state is in memory; entries exist only between the start and settlement of
// a transfer.
package inflight

import (
	"sync"

	"filepool/pkg/models"
)

// call is one in-flight operation. Joiners block on done and read val/err
// after it closes.
type call struct {
	done chan struct{}
	val  string
	err  error
}

// Waiter is a caller blocked on a queued download. The progress callback is
// replaceable: when several callers wait on the same queued file, the most
// recent caller receives progress updates.
type Waiter struct {
	done chan struct{}
	err  error

	mu         sync.Mutex
	onProgress models.ProgressFunc
}

// Done returns a channel closed when the queued download settles.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Err returns the settlement outcome. Only valid after Done is closed.
func (w *Waiter) Err() error {
	return w.err
}

// Progress forwards a progress update to the current callback.
func (w *Waiter) Progress(p models.Progress) {
	w.mu.Lock()
	onProgress := w.onProgress
	w.mu.Unlock()

	if onProgress != nil {
		onProgress(p)
	}
}

// Registry keys in-flight operations by site and an operation key. Three
// namespaces exist: immediate file downloads keyed by download key, package
// downloads keyed by package id, and queue waiters keyed by file id.
type Registry struct {
	mu        sync.Mutex
	downloads map[string]map[string]*call
	packages  map[string]map[string]*call
	waiters   map[string]map[string]*Waiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		downloads: make(map[string]map[string]*call),
		packages:  make(map[string]map[string]*call),
		waiters:   make(map[string]map[string]*Waiter),
	}
}

// DownloadOrJoin runs fn for the first caller of (siteId, key) and makes
// later callers block until that run settles, returning its result. fn runs
// without the registry lock held.
func (r *Registry) DownloadOrJoin(siteID, key string, fn func() (string, error)) (string, error) {
	return r.orJoin(r.downloads, siteID, key, fn)
}

// PackageOrJoin is DownloadOrJoin for package downloads.
func (r *Registry) PackageOrJoin(siteID, key string, fn func() (string, error)) (string, error) {
	return r.orJoin(r.packages, siteID, key, fn)
}

func (r *Registry) orJoin(ns map[string]map[string]*call, siteID, key string, fn func() (string, error)) (string, error) {
	r.mu.Lock()

	if existing, ok := ns[siteID][key]; ok {
		r.mu.Unlock()
		<-existing.done

		return existing.val, existing.err
	}

	c := &call{done: make(chan struct{})}
	if ns[siteID] == nil {
		ns[siteID] = make(map[string]*call)
	}
	ns[siteID][key] = c
	r.mu.Unlock()

	c.val, c.err = fn()

	r.mu.Lock()
	delete(ns[siteID], key)
	r.mu.Unlock()

	close(c.done)

	return c.val, c.err
}

// DownloadInFlight reports whether an immediate download for (siteId, key)
// is currently running.
func (r *Registry) DownloadInFlight(siteID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.downloads[siteID][key]

	return ok
}

// QueueWaiter returns the waiter for a queued file, creating it on first
// use, and reports whether this call created it. The progress callback
// always replaces the previous one so the latest caller observes progress.
func (r *Registry) QueueWaiter(siteID, fileID string, onProgress models.ProgressFunc) (*Waiter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.waiters[siteID][fileID]; ok {
		w.mu.Lock()
		w.onProgress = onProgress
		w.mu.Unlock()

		return w, false
	}

	w := &Waiter{done: make(chan struct{}), onProgress: onProgress}
	if r.waiters[siteID] == nil {
		r.waiters[siteID] = make(map[string]*Waiter)
	}
	r.waiters[siteID][fileID] = w

	return w, true
}

// GetQueueWaiter returns the waiter for a queued file if one exists.
func (r *Registry) GetQueueWaiter(siteID, fileID string) (*Waiter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[siteID][fileID]

	return w, ok
}

// SettleQueueWaiter resolves the waiter for a queued file, if any, waking
// everyone blocked on it.
func (r *Registry) SettleQueueWaiter(siteID, fileID string, err error) {
	r.mu.Lock()
	w, ok := r.waiters[siteID][fileID]
	if ok {
		delete(r.waiters[siteID], fileID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	w.err = err
	close(w.done)
}
