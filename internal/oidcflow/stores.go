package oidcflow

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	serrors "github.com/pilab-dev/ssobridge/errors"
)

var (
	ErrRequestNotFound  = serrors.ErrRequestNotFound
	ErrAlreadyResolved  = serrors.ErrAlreadyResolved
	ErrCodeNotFound     = errors.New("authorization code not found")
	ErrRequestIDInvalid = errors.New("authorization request id is empty")
)

// RequestStore keeps pending authorization requests until they expire.
// Status transitions are compare-and-set under a mutex.
type RequestStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, AuthorizationRequest]
	ttl   time.Duration
	now   func() time.Time
}

// NewRequestStore creates a store whose entries live for ttl.
func NewRequestStore(ttl time.Duration) *RequestStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, AuthorizationRequest](ttl),
		ttlcache.WithDisableTouchOnHit[string, AuthorizationRequest](),
	)
	go cache.Start()

	return &RequestStore{cache: cache, ttl: ttl, now: time.Now}
}

// SetClock overrides the store's clock.
func (s *RequestStore) SetClock(now func() time.Time) { s.now = now }

// Store saves req as pending, assigning its ID and lifetime.
func (s *RequestStore) Store(req *AuthorizationRequest) (*AuthorizationRequest, error) {
	stored := *req
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now().UTC()
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	s.cache.Set(stored.ID, stored, s.ttl)
	s.mu.Unlock()

	return &stored, nil
}

// Get returns the request with id, in whatever status it is.
func (s *RequestStore) Get(id string) (*AuthorizationRequest, error) {
	if id == "" {
		return nil, ErrRequestIDInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLocked(id)
}

func (s *RequestStore) getLocked(id string) (*AuthorizationRequest, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, ErrRequestNotFound
	}

	req := item.Value()
	if !s.now().Before(req.ExpiresAt) {
		s.cache.Delete(id)
		return nil, ErrRequestNotFound
	}

	return &req, nil
}

// Resolve moves the request from pending to status. A request that is no
// longer pending yields ErrAlreadyResolved and stays unchanged.
func (s *RequestStore) Resolve(id string, status Status) (*AuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if !req.Pending() {
		return req, ErrAlreadyResolved
	}

	req.Status = status
	s.cache.Set(id, *req, req.ExpiresAt.Sub(s.now()))

	return req, nil
}

// Len returns the number of stored requests.
func (s *RequestStore) Len() int { return s.cache.Len() }

// Close stops the cleanup goroutine.
func (s *RequestStore) Close() { s.cache.Stop() }

// CodeStore keeps authorization codes until they are redeemed or expire.
type CodeStore struct {
	cache *ttlcache.Cache[string, AuthorizationCode]
	now   func() time.Time
}

// NewCodeStore creates a store whose entries live for ttl.
func NewCodeStore(ttl time.Duration) *CodeStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, AuthorizationCode](ttl),
		ttlcache.WithDisableTouchOnHit[string, AuthorizationCode](),
	)
	go cache.Start()

	return &CodeStore{cache: cache, now: time.Now}
}

// SetClock overrides the store's clock.
func (s *CodeStore) SetClock(now func() time.Time) { s.now = now }

// Save stores code until its ExpiresAt.
func (s *CodeStore) Save(code *AuthorizationCode) {
	s.cache.Set(code.Code, *code, code.ExpiresAt.Sub(s.now()))
}

// Redeem returns the code and removes it, so a second redemption fails.
func (s *CodeStore) Redeem(code string) (*AuthorizationCode, error) {
	item, ok := s.cache.GetAndDelete(code)
	if !ok || item == nil {
		return nil, ErrCodeNotFound
	}

	c := item.Value()
	if !s.now().Before(c.ExpiresAt) {
		return nil, ErrCodeNotFound
	}

	return &c, nil
}

// Close stops the cleanup goroutine.
func (s *CodeStore) Close() { s.cache.Stop() }
