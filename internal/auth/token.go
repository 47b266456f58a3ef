package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/lakehouse-tools/livygo/internal/config"
)

// Scope is the Power BI / Fabric resource scope every token is requested for.
const Scope = "https://analysis.windows.net/powerbi/api/.default"

// refreshWindow is how much remaining lifetime a cached token may have
// before the next request forces a refresh.
const refreshWindow = 5 * time.Minute

// staticExpiry is the fixed far-future expiry assigned to pre-supplied raw
// tokens in the int_tests bypass mode.
var staticExpiry = time.Unix(1845972874, 0)

// Fetcher obtains a bearer token for a scope. azidentity credential types
// satisfy it directly.
type Fetcher interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error)
}

// StaticFetcher serves a pre-supplied raw token with a fixed expiry.
// Used by the int_tests authentication mode.
type StaticFetcher struct {
	Token string
}

func (s StaticFetcher) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: s.Token, ExpiresOn: staticExpiry}, nil
}

// FetcherFor selects the token fetch strategy from the configured
// authentication mode. Unrecognized modes fall through to the
// service-principal flow.
func FetcherFor(cfg *config.Config) (Fetcher, error) {
	switch strings.ToLower(cfg.Authentication) {
	case "cli":
		cred, err := azidentity.NewAzureCLICredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure cli credential: %w", err)
		}
		return cred, nil
	case "int_tests":
		return StaticFetcher{Token: cfg.AccessToken}, nil
	default:
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("service principal credential: %w", err)
		}
		return cred, nil
	}
}

// Cache is a process-wide bearer token cache. All sessions share one Cache;
// its lock is independent from the session manager's lock so a refresh can
// never deadlock with session creation.
type Cache struct {
	fetcher Fetcher
	logger  *slog.Logger

	mu    sync.Mutex
	token azcore.AccessToken
	now   func() time.Time
}

func NewCache(fetcher Fetcher, logger *slog.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Token returns the cached token, fetching a replacement when none is held
// or less than refreshWindow of lifetime remains. The cached value is
// replaced atomically under the lock, never mutated in place.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Token == "" || c.token.ExpiresOn.Sub(c.now()) < refreshWindow {
		c.logger.Debug("fetching access token", "scope", Scope)
		tok, err := c.fetcher.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{Scope}})
		if err != nil {
			return "", fmt.Errorf("fetch access token: %w", err)
		}
		c.token = tok
	}
	return c.token.Token, nil
}

// Headers returns the request headers every Livy call carries.
func (c *Cache) Headers(ctx context.Context) (http.Header, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}
