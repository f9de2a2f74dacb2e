package tenant

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Context holds the current tenant for exactly one unit of work (an inbound
// request or one job execution). A fresh Context is attached per unit with
// Begin; it is never shared between concurrently running units.
type Context struct {
	mu       sync.RWMutex
	tenantID uuid.UUID
	set      bool
}

type ctxKey struct{}

// Begin attaches a new, empty tenant Context to ctx.
func Begin(ctx context.Context) (context.Context, *Context) {
	holder := &Context{}
	return context.WithValue(ctx, ctxKey{}, holder), holder
}

// FromContext returns the tenant Context attached to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	holder, ok := ctx.Value(ctxKey{}).(*Context)
	return holder, ok && holder != nil
}

// CurrentID returns the tenant established for the unit of work carried by ctx.
func CurrentID(ctx context.Context) (uuid.UUID, bool) {
	holder, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return holder.Current()
}

// Set establishes id as the current tenant.
func (c *Context) Set(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenantID = id
	c.set = id != uuid.Nil
}

// Current returns the current tenant, or false when none is set.
func (c *Context) Current() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tenantID, c.set
}

// Clear releases the current tenant.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenantID = uuid.Nil
	c.set = false
}

// Run executes fn with a fresh tenant Context set to id and clears it when fn
// returns, panics, or ctx is cancelled underneath it.
func Run(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	scoped, holder := Begin(ctx)
	holder.Set(id)
	defer holder.Clear()

	return fn(scoped)
}
