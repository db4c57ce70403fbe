package persistence

import (
	"context"
	"sync"

	"post-planner/domain/model"
	"post-planner/domain/repository"
)

type authDocument struct {
	Identities map[string]*model.AccountIdentity `json:"identities"`
	Tokens     map[string]*model.TokenRecord     `json:"tokens"`
}

// AuthFileRepository persists tokens and identities together in one document.
type AuthFileRepository struct {
	mu   sync.RWMutex
	path string
	doc  authDocument
}

var _ repository.IAuth = (*AuthFileRepository)(nil)

func NewAuthFileRepository(path string) *AuthFileRepository {
	r := &AuthFileRepository{path: path}
	readJSONFile(path, &r.doc)
	if r.doc.Identities == nil {
		r.doc.Identities = map[string]*model.AccountIdentity{}
	}
	if r.doc.Tokens == nil {
		r.doc.Tokens = map[string]*model.TokenRecord{}
	}
	return r
}

func (r *AuthFileRepository) GetToken(_ context.Context, origin string) (*model.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.doc.Tokens[origin]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *AuthFileRepository) GetIdentity(_ context.Context, origin string) (*model.AccountIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.doc.Identities[origin]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *id
	return &c, nil
}

func (r *AuthFileRepository) Put(_ context.Context, origin string, token *model.TokenRecord, identity *model.AccountIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldTok, hadTok := r.doc.Tokens[origin]
	oldID, hadID := r.doc.Identities[origin]
	t, id := *token, *identity
	r.doc.Tokens[origin] = &t
	r.doc.Identities[origin] = &id
	if err := writeJSONAtomic(r.path, r.doc); err != nil {
		restore(r.doc.Tokens, origin, oldTok, hadTok)
		restore(r.doc.Identities, origin, oldID, hadID)
		return err
	}
	return nil
}

func (r *AuthFileRepository) PutIdentity(_ context.Context, origin string, identity *model.AccountIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldID, hadID := r.doc.Identities[origin]
	id := *identity
	r.doc.Identities[origin] = &id
	if err := writeJSONAtomic(r.path, r.doc); err != nil {
		restore(r.doc.Identities, origin, oldID, hadID)
		return err
	}
	return nil
}

func (r *AuthFileRepository) Remove(_ context.Context, origin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldTok, hadTok := r.doc.Tokens[origin]
	oldID, hadID := r.doc.Identities[origin]
	if !hadTok && !hadID {
		return nil
	}
	delete(r.doc.Tokens, origin)
	delete(r.doc.Identities, origin)
	if err := writeJSONAtomic(r.path, r.doc); err != nil {
		restore(r.doc.Tokens, origin, oldTok, hadTok)
		restore(r.doc.Identities, origin, oldID, hadID)
		return err
	}
	return nil
}

func restore[V any](m map[string]V, key string, old V, had bool) {
	if had {
		m[key] = old
	} else {
		delete(m, key)
	}
}
