package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

type contextKey struct {
	name string
}

var guestNameKey = &contextKey{name: "guest_name"}

// WithGuestName labels calls made under ctx with the guest's name in logs.
func WithGuestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, guestNameKey, name)
}

// GuestName returns the name set by WithGuestName, falling back to the
// calling module's name.
func GuestName(ctx context.Context, mod api.Module) string {
	if name, ok := ctx.Value(guestNameKey).(string); ok && name != "" {
		return name
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}
