package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/internal/auth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// usernameCollation makes username lookups and the unique index case-insensitive.
var usernameCollation = &options.Collation{Locale: "en", Strength: 2}

// AccountRepository implements domain.AccountStore on a MongoDB collection.
type AccountRepository struct {
	accounts *mongo.Collection
	hasher   auth.PasswordHasher
	now      func() time.Time
}

// NewAccountRepository creates the repository and ensures its indexes.
func NewAccountRepository(ctx context.Context, db *mongo.Database, hasher auth.PasswordHasher) (*AccountRepository, error) {
	if hasher == nil {
		hasher = auth.NewBcryptPasswordHasher(0)
	}

	repo := &AccountRepository{
		accounts: db.Collection(AccountsCollection),
		hasher:   hasher,
		now:      time.Now,
	}

	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *AccountRepository) createIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetCollation(usernameCollation),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}

	return nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}

	opts := options.FindOne().SetCollation(usernameCollation)

	return r.findOne(ctx, bson.M{"username": username}, opts)
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	if id == "" {
		return nil, nil
	}

	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Account, error) {
	var account domain.Account

	err := r.accounts.FindOne(ctx, filter, opts...).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	return &account, nil
}

func (r *AccountRepository) CheckPassword(_ context.Context, account *domain.Account, plaintext string) (bool, error) {
	if account == nil || account.PasswordHash == "" {
		return false, nil
	}

	return r.hasher.Verify(account.PasswordHash, plaintext)
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account, plaintext string) (*domain.Account, error) {
	hash, err := r.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	created := *account
	if created.ID == "" {
		created.ID = NewObjectID()
	}
	created.PasswordHash = hash
	created.CreatedAt = now
	created.UpdatedAt = now

	if _, err := r.accounts.InsertOne(ctx, &created); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return &created, nil
}

var _ domain.AccountStore = (*AccountRepository)(nil)
