package ledger

import (
	"context"
	"sync"

	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/user"
	log "github.com/sirupsen/logrus"
)

// Registry keeps one Session per user, created on first use.
type Registry struct {
	gateway gateway.Gateway
	cfg     Config
	clock   utils.Clock

	mu       sync.Mutex
	sessions map[string]*Session
	onCreate []func(*Session)
}

func NewRegistry(gw gateway.Gateway, cfg Config, clock utils.Clock) *Registry {
	return &Registry{
		gateway:  gw,
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// OnCreate registers fn to run for every new session before it is first loaded.
func (r *Registry) OnCreate(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = append(r.onCreate, fn)
}

// ForUser returns the user's session, loading it on first use. A failed load
// still returns the session so the caller can serve what it has.
func (r *Registry) ForUser(ctx context.Context, u user.User) (*Session, error) {
	r.mu.Lock()
	session, ok := r.sessions[u.Uid]
	if !ok {
		log.Infof("creating ledger session for user %s", u.Uid)
		session = NewSession(u, r.gateway, r.cfg, r.clock)
		for _, fn := range r.onCreate {
			fn(session)
		}
		r.sessions[u.Uid] = session
	}
	r.mu.Unlock()

	if err := session.EnsureLoaded(ctx); err != nil {
		log.Warnf("session for user %s is not loaded: %v", u.Uid, err)
		return session, err
	}
	return session, nil
}

// Current returns the session of the user carried by ctx.
func (r *Registry) Current(ctx context.Context) (*Session, error) {
	u, err := user.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return r.ForUser(ctx, u)
}

// Close drops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, session := range r.sessions {
		session.Close()
		delete(r.sessions, uid)
	}
}
