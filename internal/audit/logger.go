package audit

import (
	"context"
	"log"
	"sync"
	"time"
)

const writeTimeout = 5 * time.Second

// Logger hands entries to a single writer goroutine. Log never blocks: when
// the buffer is full the entry is dropped and a line is logged.
type Logger struct {
	store   Store
	entries chan Entry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewLogger(store Store, buffer int) *Logger {
	if buffer < 1 {
		buffer = 256
	}
	l := &Logger{
		store:   store,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) Log(e Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.entries <- e:
	default:
		log.Printf("audit: buffer full, dropping %s %s", e.Method, e.Endpoint)
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.store.Write(ctx, e); err != nil {
			log.Printf("audit: write %s %s: %v", e.Method, e.Endpoint, err)
		}
		cancel()
	}
}

// Close stops accepting entries and waits until the buffer is written.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.entries)
	l.mu.Unlock()
	<-l.done
}
