// Package storetest holds behaviour checks shared by every account store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Run exercises store against the AccountStore contract. newStore must return
// an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) auth.AccountStore) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("Uniqueness", func(t *testing.T) { testUniqueness(t, newStore(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("ResetTokenSingleUse", func(t *testing.T) { testResetTokenSingleUse(t, newStore(t)) })
	t.Run("ProfileUpdate", func(t *testing.T) { testProfileUpdate(t, newStore(t)) })
}

// NewAccount returns an account with a fresh ID and timestamps truncated to
// milliseconds, the precision every backing store keeps.
func NewAccount(username, email string) *domain.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuu",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func ptr[T any](v T) *T { return &v }

func testInsertAndFind(t *testing.T, store auth.AccountStore) {
	ctx := context.Background()
	account := NewAccount("alice", "alice@example.com")
	require.NoError(t, store.Insert(ctx, account))

	byID, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, account.Username, byID.Username)
	require.Equal(t, account.Email, byID.Email)
	require.Equal(t, account.PasswordHash, byID.PasswordHash)
	require.False(t, byID.MFAEnabled)
	require.Nil(t, byID.MFASecret)
	require.Nil(t, byID.ResetTokenHash)
	require.Nil(t, byID.ResetTokenExpiresAt)
	require.True(t, account.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, account.ID, byEmail.ID)

	byUsername, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, account.ID, byUsername.ID)

	_, err = store.FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = store.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = store.FindByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func testUniqueness(t *testing.T, store auth.AccountStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, NewAccount("alice", "alice@example.com")))
	bob := NewAccount("bob", "bob@example.com")
	require.NoError(t, store.Insert(ctx, bob))

	require.ErrorIs(t, store.Insert(ctx, NewAccount("carol", "alice@example.com")), domain.ErrEmailTaken)
	require.ErrorIs(t, store.Insert(ctx, NewAccount("alice", "carol@example.com")), domain.ErrUsernameTaken)

	_, err := store.Update(ctx, bob.ID, auth.AccountPatch{Email: ptr("alice@example.com")})
	require.ErrorIs(t, err, domain.ErrEmailTaken)
	_, err = store.Update(ctx, bob.ID, auth.AccountPatch{Username: ptr("alice")})
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func testConditionalUpdate(t *testing.T, store auth.AccountStore) {
	ctx := context.Background()
	account := NewAccount("alice", "alice@example.com")
	require.NoError(t, store.Insert(ctx, account))

	_, err := store.UpdateConditional(ctx,
		auth.AccountFilter{ID: &account.ID, MFAEnabled: ptr(true)},
		auth.AccountPatch{MFAEnabled: ptr(false), ClearMFASecret: true},
	)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	pending, err := store.UpdateConditional(ctx,
		auth.AccountFilter{ID: &account.ID, MFAEnabled: ptr(false)},
		auth.AccountPatch{MFASecret: ptr("JBSWY3DPEHPK3PXP")},
	)
	require.NoError(t, err)
	require.NotNil(t, pending.MFASecret)
	require.Equal(t, "JBSWY3DPEHPK3PXP", *pending.MFASecret)
	require.False(t, pending.MFAEnabled)

	_, err = store.UpdateConditional(ctx,
		auth.AccountFilter{ID: &account.ID, MFAEnabled: ptr(false), MFASecret: ptr("OTHERSECRET")},
		auth.AccountPatch{MFAEnabled: ptr(true)},
	)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	enabled, err := store.UpdateConditional(ctx,
		auth.AccountFilter{ID: &account.ID, MFAEnabled: ptr(false), MFASecret: ptr("JBSWY3DPEHPK3PXP")},
		auth.AccountPatch{MFAEnabled: ptr(true)},
	)
	require.NoError(t, err)
	require.True(t, enabled.MFAEnabled)

	disabled, err := store.UpdateConditional(ctx,
		auth.AccountFilter{ID: &account.ID, MFAEnabled: ptr(true)},
		auth.AccountPatch{MFAEnabled: ptr(false), ClearMFASecret: true},
	)
	require.NoError(t, err)
	require.False(t, disabled.MFAEnabled)
	require.Nil(t, disabled.MFASecret)
}

func testResetTokenSingleUse(t *testing.T, store auth.AccountStore) {
	ctx := context.Background()
	account := NewAccount("alice", "alice@example.com")
	require.NoError(t, store.Insert(ctx, account))

	now := time.Now().UTC().Truncate(time.Millisecond)
	expires := now.Add(time.Hour)
	hash := fmt.Sprintf("%064x", 42)

	issued, err := store.Update(ctx, account.ID, auth.AccountPatch{
		ResetTokenHash:      &hash,
		ResetTokenExpiresAt: &expires,
	})
	require.NoError(t, err)
	require.NotNil(t, issued.ResetTokenHash)
	require.True(t, expires.Equal(*issued.ResetTokenExpiresAt))

	// Expired relative to the check time.
	_, err = store.UpdateConditional(ctx,
		auth.AccountFilter{ResetTokenHash: &hash, ResetTokenValidAt: &expires},
		auth.AccountPatch{PasswordHash: ptr("newhash"), ClearResetToken: true},
	)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	const workers = 8
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.UpdateConditional(ctx,
				auth.AccountFilter{ResetTokenHash: &hash, ResetTokenValidAt: &now},
				auth.AccountPatch{PasswordHash: ptr(fmt.Sprintf("newhash-%d", i)), ClearResetToken: true},
			)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	}
	require.Equal(t, 1, successes)

	stored, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ResetTokenHash)
	require.Nil(t, stored.ResetTokenExpiresAt)
	require.Contains(t, stored.PasswordHash, "newhash-")
}

func testProfileUpdate(t *testing.T, store auth.AccountStore) {
	ctx := context.Background()
	account := NewAccount("alice", "alice@example.com")
	require.NoError(t, store.Insert(ctx, account))

	updated, err := store.Update(ctx, account.ID, auth.AccountPatch{
		Username:       ptr("alicia"),
		Email:          ptr("alicia@example.com"),
		ProfilePicture: ptr("/uploads/alicia.png"),
	})
	require.NoError(t, err)
	require.Equal(t, "alicia", updated.Username)
	require.Equal(t, "alicia@example.com", updated.Email)
	require.NotNil(t, updated.ProfilePicture)
	require.Equal(t, "/uploads/alicia.png", *updated.ProfilePicture)
	require.False(t, updated.UpdatedAt.Before(account.UpdatedAt))

	_, err = store.FindByEmail(ctx, "alice@example.com")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = store.Update(ctx, uuid.New(), auth.AccountPatch{Username: ptr("ghost")})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
