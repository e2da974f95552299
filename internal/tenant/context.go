package tenant

import (
	"context"
	"errors"
	"sync"
)

// ErrScopeSealed is returned by Patch once the identity of the active scope has been written.
var ErrScopeSealed = errors.New("tenant: request scope already sealed")

// Context carries the identity of the caller for the lifetime of one request. It is
// seeded empty at the HTTP boundary, patched once by the auth layer and then read by
// the data layer on every query.
type Context struct {
	UserID     string
	OrgID      string
	Role       string
	SkipTenant bool
}

// scope is the mutable holder shared by everything that runs with a context derived
// from Run. Handlers may fan out goroutines, so access is guarded.
type scope struct {
	mu     sync.RWMutex
	value  Context
	sealed bool
}

type scopeKey struct{}

// Run opens a new isolated scope seeded with initial. Every call made with the returned
// context (including goroutines started with it) observes the same scope; contexts
// derived from a different Run never do.
func Run(ctx context.Context, initial Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{value: initial})
}

// WithContext attaches an already sealed scope. It is meant for entrypoints that are not
// HTTP requests (jobs, scripts) and know the identity up front.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{value: tc, sealed: true})
}

// WithSkipTenant derives a sealed scope that keeps the current identity but disables
// automatic org filtering for every operation issued with the returned context.
func WithSkipTenant(ctx context.Context) context.Context {
	tc, _ := Get(ctx)
	tc.SkipTenant = true
	return WithContext(ctx, tc)
}

// Get returns a snapshot of the active scope. The second return value is false when
// ctx was never passed through Run or WithContext.
func Get(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return Context{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, true
}

// Patch merges the non-zero fields of partial into the active scope and seals it.
// It reports false without error when there is no active scope.
func Patch(ctx context.Context, partial Context) (bool, error) {
	if ctx == nil {
		return false, nil
	}
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false, ErrScopeSealed
	}

	if partial.UserID != "" {
		s.value.UserID = partial.UserID
	}
	if partial.OrgID != "" {
		s.value.OrgID = partial.OrgID
	}
	if partial.Role != "" {
		s.value.Role = partial.Role
	}
	if partial.SkipTenant {
		s.value.SkipTenant = true
	}
	s.sealed = true
	return true, nil
}

// OrgID returns the organization of the active scope, or "".
func OrgID(ctx context.Context) string {
	tc, _ := Get(ctx)
	return tc.OrgID
}

// UserID returns the user of the active scope, or "".
func UserID(ctx context.Context) string {
	tc, _ := Get(ctx)
	return tc.UserID
}

// Role returns the role of the active scope, or "".
func Role(ctx context.Context) string {
	tc, _ := Get(ctx)
	return tc.Role
}
