package push

import (
	"sync"
)

// DefaultSendBuffer is the per-socket queue depth.
const DefaultSendBuffer = 16

// Socket is one registered connection. Payloads queued on it are written by
// the connection's own goroutine.
type Socket struct {
	subject string
	send    chan []byte
}

// Subject returns the owner of the socket.
func (s *Socket) Subject() string { return s.subject }

// Messages is drained by the socket writer.
func (s *Socket) Messages() <-chan []byte { return s.send }

// Registry maps subjects to their live sockets.
type Registry struct {
	mu        sync.RWMutex
	bySubject map[string]map[*Socket]struct{}
	total     int
	buffer    int

	closeOnce sync.Once
	closing   chan struct{}

	// OnChange, when set, receives the live socket count after every change.
	OnChange func(total int)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySubject: make(map[string]map[*Socket]struct{}),
		buffer:    DefaultSendBuffer,
		closing:   make(chan struct{}),
	}
}

// Register adds a socket for subject.
func (r *Registry) Register(subject string) *Socket {
	s := &Socket{subject: subject, send: make(chan []byte, r.buffer)}

	r.mu.Lock()
	set, ok := r.bySubject[subject]
	if !ok {
		set = make(map[*Socket]struct{})
		r.bySubject[subject] = set
	}
	set[s] = struct{}{}
	r.total++
	total := r.total
	r.mu.Unlock()

	r.changed(total)
	return s
}

// Unregister removes s. Removing a socket twice is a no-op.
func (r *Registry) Unregister(s *Socket) {
	r.mu.Lock()
	set := r.bySubject[s.subject]
	if _, ok := set[s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.bySubject, s.subject)
	}
	r.total--
	total := r.total
	r.mu.Unlock()

	r.changed(total)
}

// Broadcast queues payload on every socket of subject and returns how many
// accepted it. A subject with no sockets is not an error. A socket whose
// queue is full misses the message.
func (r *Registry) Broadcast(subject string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for s := range r.bySubject[subject] {
		select {
		case s.send <- payload:
			n++
		default:
		}
	}
	return n
}

// Count returns the number of sockets for subject.
func (r *Registry) Count(subject string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubject[subject])
}

// Total returns the number of live sockets.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Close tells every socket to shut down. Safe to call more than once.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.closing) })
}

// Done is closed by Close.
func (r *Registry) Done() <-chan struct{} { return r.closing }

func (r *Registry) changed(total int) {
	if r.OnChange != nil {
		r.OnChange(total)
	}
}
