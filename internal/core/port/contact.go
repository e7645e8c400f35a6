package port

import "github.com/glimchat/glim/internal/core/domain"

// ContactDirectory is the relationship store boundary. The coordinator
// only needs it to synthesize the originator's entry on a private
// invitation, where the originator is not part of the incoming receiver
// list.
type ContactDirectory interface {
	// Lookup returns how owner knows friend (alias, avatar). Returns an
	// error when no relationship exists; callers fall back to the bare
	// username.
	Lookup(owner, friend string) (domain.Contact, error)
}
