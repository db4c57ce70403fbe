package persistence

import (
	"context"
	"fmt"
	"sync"

	"post-planner/domain/model"
	"post-planner/domain/repository"
)

type clientsDocument struct {
	Clients []*model.ClientRegistration `json:"clients"`
}

// ClientRegistrationFileRepository stores registered OAuth apps. Records are
// append-only: a (origin, clientId) pair is never rewritten.
type ClientRegistrationFileRepository struct {
	mu   sync.RWMutex
	path string
	doc  clientsDocument
}

var _ repository.IClientRegistration = (*ClientRegistrationFileRepository)(nil)

func NewClientRegistrationFileRepository(path string) *ClientRegistrationFileRepository {
	r := &ClientRegistrationFileRepository{path: path}
	readJSONFile(path, &r.doc)
	return r
}

func (r *ClientRegistrationFileRepository) Get(_ context.Context, origin, clientID string) (*model.ClientRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.doc.Clients {
		if c.Origin == origin && c.ClientID == clientID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ClientRegistrationFileRepository) FindByRedirect(_ context.Context, origin, redirectURI string) (*model.ClientRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.doc.Clients) - 1; i >= 0; i-- {
		c := r.doc.Clients[i]
		if c.Origin == origin && c.RedirectURI == redirectURI {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ClientRegistrationFileRepository) Create(_ context.Context, reg *model.ClientRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.doc.Clients {
		if c.Origin == reg.Origin && c.ClientID == reg.ClientID {
			return fmt.Errorf("client %s already registered for %s", reg.ClientID, reg.Origin)
		}
	}
	cp := *reg
	r.doc.Clients = append(r.doc.Clients, &cp)
	if err := writeJSONAtomic(r.path, r.doc); err != nil {
		r.doc.Clients = r.doc.Clients[:len(r.doc.Clients)-1]
		return err
	}
	return nil
}
