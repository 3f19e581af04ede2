package post

import (
	"sync"

	"github.com/colonyworld/replica/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Poster accepts callbacks to be run later on the owning routine
type Poster interface {
	Post(f PostCallback)
}

// Queue is a pending callback queue drained by its owning routine once per tick.
//
// Post might be called from other goroutines, so the callback list is protected by a lock
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty callback queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed on the next Tick
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting to run
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted functions, including the ones posted by the running callbacks
func (q *Queue) Tick() (n int) {
	for { // loop until there is no callbacks posted anymore
		q.lock.Lock() // lock to check number of callbacks
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break // all callbacked executed, quit
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(q.callbacks))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
		n += len(callbacksCopy)
	}
	return
}

var defaultQueue = NewQueue()

// Post a callback to the process wide queue
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the main routine to run all functions posted to the process wide queue
func Tick() int {
	return defaultQueue.Tick()
}
