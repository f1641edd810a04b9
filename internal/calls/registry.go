package calls

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("call not found")
	// ErrEnded is returned to a turn that was waiting for a call which ended meanwhile.
	ErrEnded = errors.New("call ended")
)

// Call is the in-process view of a live call. The dialogue state itself lives
// in the call state store.
type Call struct {
	Sid            string    `json:"call_sid"`
	From           string    `json:"from"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	call    Call
	turn    sync.Mutex
	ended   bool
	expired bool
}

// Registry tracks live calls and serializes turns of the same call. The
// transport delivers at least once, so two deliveries of one webhook may race.
type Registry struct {
	mu                sync.RWMutex
	calls             map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(Call)
	now               func() time.Time
}

func NewRegistry(inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Registry{
		calls:             make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// SetExpireHook registers the callback run for every call the janitor retires.
func (r *Registry) SetExpireHook(hook func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// Acquire registers the call if needed and blocks until no other turn of it is
// running. The returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, sid, from string) (func(), error) {
	for {
		r.mu.Lock()
		e, ok := r.calls[sid]
		if !ok {
			now := r.now()
			e = &entry{call: Call{Sid: sid, From: from, StartedAt: now, LastActivityAt: now}}
			r.calls[sid] = e
		}
		r.mu.Unlock()

		if err := lockTurn(ctx, &e.turn); err != nil {
			return nil, err
		}

		r.mu.Lock()
		switch {
		case e.ended:
			r.mu.Unlock()
			e.turn.Unlock()
			return nil, ErrEnded
		case e.expired:
			// The janitor dropped the entry while we waited; start over on a fresh one.
			r.mu.Unlock()
			e.turn.Unlock()
			continue
		}
		e.call.Turns++
		e.call.LastActivityAt = r.now()
		r.mu.Unlock()
		return r.releaser(e), nil
	}
}

func (r *Registry) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			e.call.LastActivityAt = r.now()
			r.mu.Unlock()
			e.turn.Unlock()
		})
	}
}

func (r *Registry) Get(sid string) (Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.calls[sid]
	if !ok {
		return Call{}, ErrNotFound
	}
	return e.call, nil
}

// Finish ends the call and waits for a turn still running on it. Turns
// queued behind it get ErrEnded, and the entry stays registered until release
// so a redelivered webhook cannot start a parallel turn meanwhile. On a ctx
// error the call is dropped anyway and release is nil.
func (r *Registry) Finish(ctx context.Context, sid string) (Call, func(), error) {
	r.mu.Lock()
	e, ok := r.calls[sid]
	if !ok || e.ended {
		r.mu.Unlock()
		return Call{}, nil, ErrNotFound
	}
	e.ended = true
	call := e.call
	r.mu.Unlock()

	drop := func() {
		r.mu.Lock()
		if r.calls[sid] == e {
			delete(r.calls, sid)
		}
		r.mu.Unlock()
	}
	if err := lockTurn(ctx, &e.turn); err != nil {
		drop()
		return call, nil, err
	}
	var once sync.Once
	return call, func() {
		once.Do(func() {
			drop()
			e.turn.Unlock()
		})
	}, nil
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive()
			}
		}
	}()
}

func (r *Registry) expireInactive() {
	now := r.now()
	var expired []Call

	r.mu.Lock()
	for sid, e := range r.calls {
		if e.ended || now.Sub(e.call.LastActivityAt) < r.inactivityTimeout {
			continue
		}
		// A turn in progress keeps the call alive.
		if !e.turn.TryLock() {
			continue
		}
		e.expired = true
		e.turn.Unlock()
		delete(r.calls, sid)
		expired = append(expired, e.call)
	}
	hook := r.onExpire
	r.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

// lockTurn locks mu unless ctx ends first.
func lockTurn(ctx context.Context, mu *sync.Mutex) error {
	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		// Hand the lock back once the goroutine gets it.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return ctx.Err()
	}
}
