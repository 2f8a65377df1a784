package keyring

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/pilab-dev/ssobridge/internal/keyring")

// DefaultLifetime is roughly three months.
const DefaultLifetime = 90 * 24 * time.Hour

// DefaultMissReloadInterval is the minimum spacing of store reloads caused by
// unknown key ids.
const DefaultMissReloadInterval = time.Second

// Options tune rotation. Zero values fall back to defaults.
type Options struct {
	// Lifetime of a new entry.
	Lifetime time.Duration
	// RotationLead stops protecting with an entry this long before it expires,
	// so fresh cookies never outlive their key by less than the lead.
	RotationLead time.Duration
	// MissReloadInterval limits how often Resolve goes back to the store for
	// an id it does not know.
	MissReloadInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Ring is a cached view over a shared Store. It is safe for concurrent use.
type Ring struct {
	name  string
	store Store
	opts  Options

	mu      sync.RWMutex
	entries map[string]Entry

	createMu sync.Mutex

	missMu         sync.Mutex
	lastMissReload time.Time
}

// New returns a ring named name. Every process that must interoperate uses
// the same name and the same store location.
func New(name string, store Store, opts Options) (*Ring, error) {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.RotationLead < 0 || opts.RotationLead >= opts.Lifetime {
		return nil, ErrInvalidLifetime
	}
	if opts.MissReloadInterval <= 0 {
		opts.MissReloadInterval = DefaultMissReloadInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Ring{
		name:    name,
		store:   store,
		opts:    opts,
		entries: make(map[string]Entry),
	}, nil
}

// Name returns the shared application name of the ring.
func (r *Ring) Name() string { return r.name }

// CurrentKey returns the entry new payloads are protected with. When no entry
// is usable it creates the next generation through the store's atomic
// create-if-absent, and adopts whichever entry won.
func (r *Ring) CurrentKey(ctx context.Context) (Entry, error) {
	now := r.opts.Now()
	if e, ok := r.active(now); ok {
		return e, nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	// Another process may have rotated already.
	if err := r.reload(ctx); err != nil {
		return Entry{}, err
	}
	if e, ok := r.active(now); ok {
		return e, nil
	}

	return r.createNext(ctx, now)
}

// Resolve returns the entry with id. An unknown id reloads the store, since
// another process may have created the entry, at most once per
// MissReloadInterval.
func (r *Ring) Resolve(ctx context.Context, id string) (Entry, error) {
	e, ok := r.cached(id)
	if !ok {
		if !r.missReloadDue() {
			return Entry{}, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
		}
		if err := r.reload(ctx); err != nil {
			return Entry{}, err
		}
		if e, ok = r.cached(id); !ok {
			return Entry{}, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
		}
	}

	if e.Expired(r.opts.Now()) {
		return Entry{}, fmt.Errorf("%w: %s", ErrKeyExpired, id)
	}

	return e, nil
}

// Rotate creates the next generation even if the current entry is usable.
// Older entries stay resolvable until they expire.
func (r *Ring) Rotate(ctx context.Context) (Entry, error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if err := r.reload(ctx); err != nil {
		return Entry{}, err
	}

	return r.createNext(ctx, r.opts.Now())
}

// Entries returns every entry known to the store, oldest first.
func (r *Ring) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := r.store.Load(ctx, r.name)
	if err != nil {
		return nil, fmt.Errorf("load key ring %s: %w", r.name, err)
	}

	return entries, nil
}

// Prune removes expired entries from the store and the cache.
func (r *Ring) Prune(ctx context.Context) (int, error) {
	n, err := r.store.DeleteExpired(ctx, r.name, r.opts.Now())
	if err != nil {
		return 0, fmt.Errorf("prune key ring %s: %w", r.name, err)
	}
	if err := r.reload(ctx); err != nil {
		return n, err
	}

	return n, nil
}

func (r *Ring) missReloadDue() bool {
	r.missMu.Lock()
	defer r.missMu.Unlock()

	now := r.opts.Now()
	if !r.lastMissReload.IsZero() && now.Sub(r.lastMissReload) < r.opts.MissReloadInterval {
		return false
	}
	r.lastMissReload = now

	return true
}

func (r *Ring) cached(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]

	return e, ok
}

// active picks the newest generation that may still protect new payloads.
func (r *Ring) active(now time.Time) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Entry
	found := false
	for _, e := range r.entries {
		if !now.Before(e.ExpiresAt.Add(-r.opts.RotationLead)) {
			continue
		}
		if !found || e.Generation > best.Generation {
			best, found = e, true
		}
	}

	return best, found
}

func (r *Ring) maxGeneration() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var highest int64
	for _, e := range r.entries {
		if e.Generation > highest {
			highest = e.Generation
		}
	}

	return highest
}

func (r *Ring) reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "keyring.reload")
	defer span.End()
	span.SetAttributes(attribute.String("keyring.name", r.name))

	entries, err := r.store.Load(ctx, r.name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load key ring %s: %w", r.name, err)
	}

	fresh := make(map[string]Entry, len(entries))
	for _, e := range entries {
		fresh[e.ID] = e
	}

	r.mu.Lock()
	r.entries = fresh
	r.mu.Unlock()

	return nil
}

func (r *Ring) createNext(ctx context.Context, now time.Time) (Entry, error) {
	ctx, span := tracer.Start(ctx, "keyring.create")
	defer span.End()

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return Entry{}, fmt.Errorf("generate key: %w", err)
	}

	candidate := Entry{
		ID:         uuid.NewString(),
		Generation: r.maxGeneration() + 1,
		Key:        key,
		CreatedAt:  now.UTC(),
		ExpiresAt:  now.Add(r.opts.Lifetime).UTC(),
	}
	span.SetAttributes(
		attribute.String("keyring.name", r.name),
		attribute.Int64("keyring.generation", candidate.Generation),
	)

	stored, created, err := r.store.CreateIfAbsent(ctx, r.name, candidate)
	if err != nil {
		span.RecordError(err)
		return Entry{}, fmt.Errorf("create key ring entry: %w", err)
	}

	r.mu.Lock()
	r.entries[stored.ID] = stored
	r.mu.Unlock()

	if created {
		metrics.KeyRingEntriesCreatedTotal.WithLabelValues(r.name).Inc()
		log.Info().
			Str("ring", r.name).
			Str("key_id", stored.ID).
			Int64("generation", stored.Generation).
			Time("expires_at", stored.ExpiresAt).
			Msg("Created key ring entry")
	} else {
		log.Debug().Str("ring", r.name).Int64("generation", stored.Generation).Msg("Adopted key ring entry created by another process")
	}

	return stored, nil
}
