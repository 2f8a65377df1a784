package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/ssobridge/internal/keyring"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type keyRingDocument struct {
	Ring          string `bson:"ring"`
	keyring.Entry `bson:",inline"`
}

// KeyRingRepository implements keyring.Store on a MongoDB collection. The
// unique {ring, generation} index makes CreateIfAbsent atomic across processes.
type KeyRingRepository struct {
	entries *mongo.Collection
}

// NewKeyRingRepository creates the repository and ensures its indexes.
func NewKeyRingRepository(ctx context.Context, db *mongo.Database) (*KeyRingRepository, error) {
	repo := &KeyRingRepository{entries: db.Collection(KeyRingCollection)}

	_, err := repo.entries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ring", Value: 1}, {Key: "generation", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key ring index: %w", err)
	}

	return repo, nil
}

func (r *KeyRingRepository) Load(ctx context.Context, ring string) ([]keyring.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generation", Value: 1}})

	cursor, err := r.entries.Find(ctx, bson.M{"ring": ring}, opts)
	if err != nil {
		return nil, fmt.Errorf("load key ring %q: %w", ring, err)
	}
	defer cursor.Close(ctx)

	var docs []keyRingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode key ring %q: %w", ring, err)
	}

	entries := make([]keyring.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, d.Entry)
	}

	return entries, nil
}

func (r *KeyRingRepository) CreateIfAbsent(ctx context.Context, ring string, e keyring.Entry) (keyring.Entry, bool, error) {
	_, err := r.entries.InsertOne(ctx, keyRingDocument{Ring: ring, Entry: e})
	if err == nil {
		return e, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return keyring.Entry{}, false, fmt.Errorf("insert key ring entry: %w", err)
	}

	var existing keyRingDocument
	err = r.entries.FindOne(ctx, bson.M{"ring": ring, "generation": e.Generation}).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return keyring.Entry{}, false, fmt.Errorf("key ring entry %d vanished after conflict: %w", e.Generation, keyring.ErrKeyNotFound)
	}
	if err != nil {
		return keyring.Entry{}, false, fmt.Errorf("read conflicting key ring entry: %w", err)
	}

	return existing.Entry, false, nil
}

func (r *KeyRingRepository) DeleteExpired(ctx context.Context, ring string, now time.Time) (int, error) {
	res, err := r.entries.DeleteMany(ctx, bson.M{
		"ring":       ring,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired key ring entries: %w", err)
	}

	return int(res.DeletedCount), nil
}

var _ keyring.Store = (*KeyRingRepository)(nil)
