package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aisentinel/session-service/internal/domain"
)

// ErrStaleGeneration is returned when the credential changed while an
// identity fetch was in flight. The result was discarded.
var ErrStaleGeneration = errors.New("identity fetched for a replaced session")

const maxStaleRetries = 3

// AuthState is what route guards and menus observe.
type AuthState struct {
	IsAuthenticated bool
	User            *domain.IdentityUser
	IsLoading       bool
}

// IdentityFetcher is the part of Client the consumer needs.
type IdentityFetcher interface {
	Me(ctx context.Context, token string) (*domain.Identity, error)
}

// IdentityConsumer answers "who am I" from a single identity endpoint. At
// most one fetch per credential generation is in flight; concurrent callers
// share its result.
type IdentityConsumer struct {
	api       IdentityFetcher
	activator *Activator
	logger    *zap.Logger
	group     singleflight.Group

	mu       sync.RWMutex
	identity *domain.Identity
	// fetchedAt is the generation identity belongs to; 0 means never.
	fetchedAt uint64
	hasResult bool
}

func NewIdentityConsumer(api IdentityFetcher, activator *Activator, logger *zap.Logger) *IdentityConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityConsumer{api: api, activator: activator, logger: logger}
}

// State returns the last identity if it still belongs to the current
// credential; otherwise the state is loading.
func (c *IdentityConsumer) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasResult || c.fetchedAt != c.activator.Generation() {
		return AuthState{IsLoading: true}
	}
	return stateOf(c.identity)
}

func stateOf(identity *domain.Identity) AuthState {
	if identity == nil || !identity.Authenticated || identity.User == nil {
		return AuthState{}
	}
	return AuthState{IsAuthenticated: true, User: identity.User}
}

// Identity returns the raw payload of the last current fetch.
func (c *IdentityConsumer) Identity() (*domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasResult || c.fetchedAt != c.activator.Generation() {
		return nil, false
	}
	return c.identity, true
}

type fetchResult struct {
	identity   *domain.Identity
	generation uint64
	token      string
}

// Refresh fetches the identity for the current credential. A rejected
// credential is cleared, which ends the active session.
func (c *IdentityConsumer) Refresh(ctx context.Context) (AuthState, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		state, err := c.refreshOnce(ctx)
		if errors.Is(err, ErrStaleGeneration) {
			c.logger.Debug("discarding stale identity", zap.Int("attempt", attempt+1))
			continue
		}
		return state, err
	}
	return AuthState{IsLoading: true}, ErrStaleGeneration
}

func (c *IdentityConsumer) refreshOnce(ctx context.Context) (AuthState, error) {
	gen := c.activator.Generation()
	key := "me:" + strconv.FormatUint(gen, 10)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		token, _ := c.activator.Token()
		// Shared by every waiter, so one caller leaving must not cancel it.
		identity, err := c.api.Me(context.WithoutCancel(ctx), token)
		if err != nil {
			return fetchResult{generation: gen, token: token}, err
		}
		return fetchResult{identity: identity, generation: gen, token: token}, nil
	})

	var (
		res fetchResult
		err error
	)
	select {
	case r := <-ch:
		res, _ = r.Val.(fetchResult)
		err = r.Err
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}

	if err != nil {
		if errors.Is(err, ErrUnauthorized) && res.token != "" {
			c.reject(res)
			return AuthState{}, err
		}
		return c.State(), err
	}

	if res.generation != c.activator.Generation() {
		return AuthState{IsLoading: true}, ErrStaleGeneration
	}

	if res.token != "" && !res.identity.SessionValid {
		c.reject(res)
		return AuthState{}, nil
	}

	c.mu.Lock()
	c.identity = res.identity
	c.fetchedAt = res.generation
	c.hasResult = true
	c.mu.Unlock()

	return stateOf(res.identity), nil
}

// reject clears a credential the server refused, unless it was already
// replaced.
func (c *IdentityConsumer) reject(res fetchResult) {
	gen, ok := c.activator.ClearIf(res.generation)
	if !ok {
		return
	}
	c.logger.Info("server rejected session token, cleared it")
	c.signedOut(gen)
}

// signedOut records an anonymous identity for gen without a fetch.
func (c *IdentityConsumer) signedOut(gen uint64) {
	c.mu.Lock()
	c.identity = &domain.Identity{}
	c.fetchedAt = gen
	c.hasResult = true
	c.mu.Unlock()
}
