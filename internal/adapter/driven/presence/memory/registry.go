package memory

import (
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/glimchat/glim/internal/core/port"
	"github.com/rs/zerolog/log"
)

type entry struct {
	ch   port.SignalChannel
	busy bool
}

// Registry is the in-memory presence table: one entry per user with an
// open presence channel, plus the busy flag guarding admission into a
// second concurrent call. Implements port.Presence.
type Registry struct {
	mu    sync.Mutex
	users map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*entry),
	}
}

// Connect registers a user's long-lived presence channel. A reconnect
// replaces the previous channel and closes it.
func (r *Registry) Connect(user string, ch port.SignalChannel) {
	r.mu.Lock()
	prev, ok := r.users[user]
	r.users[user] = &entry{ch: ch}
	r.mu.Unlock()

	if ok {
		if err := prev.ch.Close(); err != nil {
			log.Debug().Err(err).Str("user", user).Msg("Closing superseded presence channel")
		}
	}
	log.Info().Str("user", user).Msg("User online")
}

// Disconnect removes the user. The channel identity must match so a
// late disconnect of a superseded connection cannot evict the new one.
func (r *Registry) Disconnect(user string, ch port.SignalChannel) {
	r.mu.Lock()
	cur, ok := r.users[user]
	if ok && cur.ch == ch {
		delete(r.users, user)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		log.Info().Str("user", user).Msg("User offline")
	}
}

func (r *Registry) IsOnline(user string) bool {
	r.mu.Lock()
	_, ok := r.users[user]
	r.mu.Unlock()
	return ok
}

func (r *Registry) IsBusy(user string) (busy, online bool) {
	r.mu.Lock()
	e, ok := r.users[user]
	r.mu.Unlock()
	if !ok {
		return false, false
	}
	return e.busy, true
}

func (r *Registry) SetBusy(user string, busy bool) error {
	r.mu.Lock()
	e, ok := r.users[user]
	if ok {
		e.busy = busy
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrOffline
	}
	return nil
}

func (r *Registry) SendToUser(user string, env domain.Envelope) error {
	r.mu.Lock()
	e, ok := r.users[user]
	r.mu.Unlock()
	if !ok {
		return domain.ErrOffline
	}
	return e.ch.Send(env)
}

// Admit is the single atomic admission unit: originator check-and-mark
// and candidate filtering happen under one lock so two concurrent
// invitations cannot double-book a participant. The originator is
// marked busy only when at least one candidate survives.
func (r *Registry) Admit(originator string, candidates []string) ([]port.Candidacy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	self, ok := r.users[originator]
	if !ok {
		return nil, domain.ErrOffline
	}
	if self.busy {
		return nil, domain.ErrBusy
	}

	verdicts := make([]port.Candidacy, 0, len(candidates))
	eligible := 0
	for _, name := range candidates {
		e, ok := r.users[name]
		switch {
		case !ok:
			verdicts = append(verdicts, port.Candidacy{Username: name, Verdict: port.VerdictOffline})
		case e.busy:
			verdicts = append(verdicts, port.Candidacy{Username: name, Verdict: port.VerdictBusy})
		default:
			verdicts = append(verdicts, port.Candidacy{Username: name, Verdict: port.VerdictEligible})
			eligible++
		}
	}
	if eligible > 0 {
		self.busy = true
	}
	return verdicts, nil
}
