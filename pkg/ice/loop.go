package ice

import (
	"sync"

	"github.com/gammazero/deque"
)

// EventLoop runs posted callbacks one at a time, in order, on its own goroutine.
type EventLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  deque.Deque
	closed bool
	done   chan struct{}
}

func NewEventLoop() *EventLoop {
	l := &EventLoop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post queues fn. It fails once the loop is closed.
func (l *EventLoop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoopClosed
	}
	l.queue.PushBack(fn)
	l.cond.Signal()
	return nil
}

// Close runs the callbacks already queued and stops the loop.
// It must not be called from a callback.
func (l *EventLoop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}

func (l *EventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for l.queue.Len() == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.queue.Len() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue.PopFront().(func())
		l.mu.Unlock()

		fn()
	}
}
