package livy

import (
	"context"
	"net/http"
)

// HeaderProvider supplies the auth headers for every request.
// Satisfied by *auth.Cache.
type HeaderProvider interface {
	Headers(ctx context.Context) (http.Header, error)
}

// ShortcutProvisioner provisions OneLake shortcuts after the first
// successful session creation. Satisfied by *shortcut.Client.
type ShortcutProvisioner interface {
	CreateShortcuts(ctx context.Context, jsonSpec string) error
}
