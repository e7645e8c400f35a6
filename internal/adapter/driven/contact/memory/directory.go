package memory

import (
	"fmt"
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
)

// Directory is an in-memory relationship store: who knows whom, and
// under which alias/avatar. The real deployment fronts the contact
// service of the chat backend; this implementation backs tests and
// single-process setups.
type Directory struct {
	mu      sync.RWMutex
	friends map[string]map[string]domain.Contact
}

func NewDirectory() *Directory {
	return &Directory{
		friends: make(map[string]map[string]domain.Contact),
	}
}

// Put records that owner knows ct.Username as ct.
func (d *Directory) Put(owner string, ct domain.Contact) {
	d.mu.Lock()
	if _, ok := d.friends[owner]; !ok {
		d.friends[owner] = make(map[string]domain.Contact)
	}
	d.friends[owner][ct.Username] = ct
	d.mu.Unlock()
}

func (d *Directory) Lookup(owner, friend string) (domain.Contact, error) {
	d.mu.RLock()
	ct, ok := d.friends[owner][friend]
	d.mu.RUnlock()
	if !ok {
		return domain.Contact{}, fmt.Errorf("no relationship %s -> %s", owner, friend)
	}
	return ct, nil
}
