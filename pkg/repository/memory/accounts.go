// Package memory provides an in-process account store for tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// AccountsRepository keeps accounts in maps guarded by a single mutex, so
// every conditional update is atomic.
type AccountsRepository struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*domain.Account
	byEmail    map[string]uuid.UUID
	byUsername map[string]uuid.UUID
	now        func() time.Time
}

// NewAccountsRepository creates an empty store.
func NewAccountsRepository() *AccountsRepository {
	return &AccountsRepository{
		byID:       make(map[uuid.UUID]*domain.Account),
		byEmail:    make(map[string]uuid.UUID),
		byUsername: make(map[string]uuid.UUID),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ auth.AccountStore = (*AccountsRepository)(nil)

// FindByEmail retrieves an account by email.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.byID[id].Clone(), nil
}

// FindByUsername retrieves an account by username.
func (r *AccountsRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.byID[id].Clone(), nil
}

// FindByID retrieves an account by ID.
func (r *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Insert stores a new account.
func (r *AccountsRepository) Insert(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return domain.ErrEmailTaken
	}
	if _, ok := r.byUsername[account.Username]; ok {
		return domain.ErrUsernameTaken
	}

	stored := account.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	r.byUsername[stored.Username] = stored.ID
	return nil
}

// UpdateConditional applies patch to the first account matching filter.
func (r *AccountsRepository) UpdateConditional(ctx context.Context, filter auth.AccountFilter, patch auth.AccountPatch) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var target *domain.Account
	if filter.ID != nil {
		if a, ok := r.byID[*filter.ID]; ok && filter.Matches(a) {
			target = a
		}
	} else {
		for _, a := range r.byID {
			if filter.Matches(a) {
				target = a
				break
			}
		}
	}
	if target == nil {
		return nil, domain.ErrAccountNotFound
	}
	return r.apply(target, patch)
}

// Update applies patch to the account with the given ID.
func (r *AccountsRepository) Update(ctx context.Context, id uuid.UUID, patch auth.AccountPatch) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.apply(target, patch)
}

// apply must be called with mu held.
func (r *AccountsRepository) apply(target *domain.Account, patch auth.AccountPatch) (*domain.Account, error) {
	if patch.Email != nil && *patch.Email != target.Email {
		if _, ok := r.byEmail[*patch.Email]; ok {
			return nil, domain.ErrEmailTaken
		}
	}
	if patch.Username != nil && *patch.Username != target.Username {
		if _, ok := r.byUsername[*patch.Username]; ok {
			return nil, domain.ErrUsernameTaken
		}
	}

	oldEmail, oldUsername := target.Email, target.Username
	patch.Apply(target, r.now())

	if target.Email != oldEmail {
		delete(r.byEmail, oldEmail)
		r.byEmail[target.Email] = target.ID
	}
	if target.Username != oldUsername {
		delete(r.byUsername, oldUsername)
		r.byUsername[target.Username] = target.ID
	}
	return target.Clone(), nil
}
