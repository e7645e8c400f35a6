package port

import "github.com/glimchat/glim/internal/core/domain"

// Verdict is the admission outcome for one invite candidate.
type Verdict int

const (
	VerdictEligible Verdict = iota
	VerdictOffline
	VerdictBusy
)

func (v Verdict) String() string {
	switch v {
	case VerdictEligible:
		return "eligible"
	case VerdictOffline:
		return "offline"
	case VerdictBusy:
		return "busy"
	}
	return "unknown"
}

// Candidacy pairs a candidate username with its admission verdict.
type Candidacy struct {
	Username string
	Verdict  Verdict
}

// Presence tracks which users hold an open presence channel and whether
// each is currently busy in a call. Lookups on absent users report a
// not-found outcome instead of assuming the entry exists.
type Presence interface {
	IsOnline(user string) bool

	// IsBusy reports the busy flag and whether the user is known at all.
	IsBusy(user string) (busy, online bool)

	// SetBusy flips the busy flag. Returns domain.ErrOffline when the
	// user has no open presence channel.
	SetBusy(user string, busy bool) error

	// SendToUser delivers a message over the user's presence channel.
	// Returns domain.ErrOffline when there is none.
	SendToUser(user string, env domain.Envelope) error

	// Admit evaluates one invitation as a single atomic unit: verify the
	// originator is online and idle, judge every candidate, and mark the
	// originator busy if and only if at least one candidate is eligible.
	// Two concurrent invitations can therefore never double-book the
	// same participant. Returns domain.ErrOffline or domain.ErrBusy for
	// the originator's own failures.
	Admit(originator string, candidates []string) ([]Candidacy, error)
}
