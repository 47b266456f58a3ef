package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakehouse-tools/livygo/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingFetcher records every GetToken call and serves scripted tokens.
type countingFetcher struct {
	calls  int
	token  azcore.AccessToken
	err    error
	scopes []string
}

func (f *countingFetcher) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.calls++
	f.scopes = opts.Scopes
	return f.token, f.err
}

func TestFetcherForCLI(t *testing.T) {
	cfg := &config.Config{Authentication: "CLI"}
	f, err := FetcherFor(cfg)
	require.NoError(t, err)
	assert.IsType(t, &azidentity.AzureCLICredential{}, f)
}

func TestFetcherForIntTests(t *testing.T) {
	cfg := &config.Config{Authentication: "int_tests", AccessToken: "raw"}
	f, err := FetcherFor(cfg)
	require.NoError(t, err)
	require.IsType(t, StaticFetcher{}, f)

	tok, err := f.GetToken(context.Background(), policy.TokenRequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "raw", tok.Token)
	assert.Equal(t, time.Unix(1845972874, 0), tok.ExpiresOn)
}

func TestFetcherForUnknownModeUsesServicePrincipal(t *testing.T) {
	cfg := &config.Config{
		Authentication: "az_cli", // not "cli": falls through to the SP default
		TenantID:       "11111111-2222-3333-4444-555555555555",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
	}
	f, err := FetcherFor(cfg)
	require.NoError(t, err)
	assert.IsType(t, &azidentity.ClientSecretCredential{}, f)
}

func TestCacheServesFreshTokenWithoutRefetch(t *testing.T) {
	fetcher := &countingFetcher{token: azcore.AccessToken{
		Token:     "tok-1",
		ExpiresOn: time.Now().Add(time.Hour),
	}}
	cache := NewCache(fetcher, discardLogger())

	for i := 0; i < 3; i++ {
		tok, err := cache.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []string{Scope}, fetcher.scopes)
}

func TestCacheRefreshesNearExpiry(t *testing.T) {
	now := time.Now()
	fetcher := &countingFetcher{token: azcore.AccessToken{
		Token:     "tok-1",
		ExpiresOn: now.Add(time.Hour),
	}}
	cache := NewCache(fetcher, discardLogger())
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	// Advance to within 5 minutes of expiry: next call must refetch.
	cache.now = func() time.Time { return now.Add(56 * time.Minute) }
	fetcher.token = azcore.AccessToken{Token: "tok-2", ExpiresOn: now.Add(2 * time.Hour)}

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, fetcher.calls)
}

func TestCacheDoesNotRefreshOutsideWindow(t *testing.T) {
	now := time.Now()
	fetcher := &countingFetcher{token: azcore.AccessToken{
		Token:     "tok-1",
		ExpiresOn: now.Add(time.Hour),
	}}
	cache := NewCache(fetcher, discardLogger())
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	// 54 minutes in, 6 minutes of life left: still a cache hit.
	cache.now = func() time.Time { return now.Add(54 * time.Minute) }
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, fetcher.calls)
}

func TestCachePropagatesFetchError(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("aad unreachable")}
	cache := NewCache(fetcher, discardLogger())

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch access token")
}

func TestHeaders(t *testing.T) {
	fetcher := &countingFetcher{token: azcore.AccessToken{
		Token:     "tok-1",
		ExpiresOn: time.Now().Add(time.Hour),
	}}
	cache := NewCache(fetcher, discardLogger())

	h, err := cache.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}
