package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// AccountsCollection is the default collection name.
const AccountsCollection = "accounts"

const (
	emailIndex      = "accounts_email_unique"
	usernameIndex   = "accounts_username_unique"
	resetTokenIndex = "accounts_reset_token_hash_unique"
)

type accountDocument struct {
	ID                  string     `bson:"_id"`
	Username            string     `bson:"username"`
	Email               string     `bson:"email"`
	PasswordHash        string     `bson:"password_hash"`
	MFAEnabled          bool       `bson:"mfa_enabled"`
	MFASecret           *string    `bson:"mfa_secret,omitempty"`
	ResetTokenHash      *string    `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time `bson:"reset_token_expires_at,omitempty"`
	ProfilePicture      *string    `bson:"profile_picture,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

func toDocument(a *domain.Account) accountDocument {
	return accountDocument{
		ID:                  a.ID.String(),
		Username:            a.Username,
		Email:               a.Email,
		PasswordHash:        a.PasswordHash,
		MFAEnabled:          a.MFAEnabled,
		MFASecret:           a.MFASecret,
		ResetTokenHash:      a.ResetTokenHash,
		ResetTokenExpiresAt: a.ResetTokenExpiresAt,
		ProfilePicture:      a.ProfilePicture,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (d *accountDocument) toAccount() (*domain.Account, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:                  id,
		Username:            d.Username,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		MFAEnabled:          d.MFAEnabled,
		MFASecret:           d.MFASecret,
		ResetTokenHash:      d.ResetTokenHash,
		ResetTokenExpiresAt: d.ResetTokenExpiresAt,
		ProfilePicture:      d.ProfilePicture,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}, nil
}

// AccountsRepository stores accounts as documents keyed by the account ID.
type AccountsRepository struct {
	coll *mongo.Collection
}

// NewAccountsRepository creates a repository backed by coll. Call
// EnsureIndexes before first use.
func NewAccountsRepository(coll *mongo.Collection) *AccountsRepository {
	return &AccountsRepository{coll: coll}
}

var _ auth.AccountStore = (*AccountsRepository)(nil)

// EnsureIndexes creates the unique indexes the store relies on.
func (r *AccountsRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
		{
			Keys: bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(resetTokenIndex).
				SetPartialFilterExpression(bson.M{"reset_token_hash": bson.M{"$type": "string"}}),
		},
	})
	return err
}

func (r *AccountsRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var doc accountDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAccount()
}

// FindByEmail retrieves an account by email.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByUsername retrieves an account by username.
func (r *AccountsRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// FindByID retrieves an account by ID.
func (r *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// Insert creates a new account.
func (r *AccountsRepository) Insert(ctx context.Context, a *domain.Account) error {
	_, err := r.coll.InsertOne(ctx, toDocument(a))
	return mapError(err)
}

// UpdateConditional applies patch through FindOneAndUpdate, which matches and
// modifies a single document atomically.
func (r *AccountsRepository) UpdateConditional(ctx context.Context, filter auth.AccountFilter, patch auth.AccountPatch) (*domain.Account, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err := r.coll.FindOneAndUpdate(ctx, filterDocument(filter), updateDocument(patch, time.Now().UTC()), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toAccount()
}

// Update applies patch to the account with the given ID.
func (r *AccountsRepository) Update(ctx context.Context, id uuid.UUID, patch auth.AccountPatch) (*domain.Account, error) {
	return r.UpdateConditional(ctx, auth.AccountFilter{ID: &id}, patch)
}

func filterDocument(f auth.AccountFilter) bson.M {
	filter := bson.M{}
	if f.ID != nil {
		filter["_id"] = f.ID.String()
	}
	if f.MFAEnabled != nil {
		filter["mfa_enabled"] = *f.MFAEnabled
	}
	if f.MFASecret != nil {
		filter["mfa_secret"] = *f.MFASecret
	}
	if f.ResetTokenHash != nil {
		filter["reset_token_hash"] = *f.ResetTokenHash
	}
	if f.ResetTokenValidAt != nil {
		filter["reset_token_expires_at"] = bson.M{"$gt": *f.ResetTokenValidAt}
	}
	return filter
}

func updateDocument(p auth.AccountPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	unset := bson.M{}

	if p.Username != nil {
		set["username"] = *p.Username
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.PasswordHash != nil {
		set["password_hash"] = *p.PasswordHash
	}
	if p.ProfilePicture != nil {
		set["profile_picture"] = *p.ProfilePicture
	}
	if p.MFAEnabled != nil {
		set["mfa_enabled"] = *p.MFAEnabled
	}
	if p.ClearMFASecret {
		unset["mfa_secret"] = ""
	} else if p.MFASecret != nil {
		set["mfa_secret"] = *p.MFASecret
	}
	if p.ClearResetToken {
		unset["reset_token_hash"] = ""
		unset["reset_token_expires_at"] = ""
	} else if p.ResetTokenHash != nil && p.ResetTokenExpiresAt != nil {
		set["reset_token_hash"] = *p.ResetTokenHash
		set["reset_token_expires_at"] = *p.ResetTokenExpiresAt
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func mapError(err error) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	// The server reports the violated index by name in the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return domain.ErrEmailTaken
	case strings.Contains(msg, usernameIndex):
		return domain.ErrUsernameTaken
	}
	return err
}
