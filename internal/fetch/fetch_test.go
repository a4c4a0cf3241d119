package fetch

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/ratelimit"
)

func testVocab() catalog.Identity {
	return catalog.Identity{
		UserAgents: []string{"ua-1", "ua-2", "ua-3"},
		Accept:     []string{"text/html", "*/*"},
		Languages:  []string{"en-US,en;q=0.9", "de-DE,de;q=0.9"},
		Encodings:  []string{"gzip", "gzip, deflate"},
		Referers:   []string{"https://www.google.com/", ""},
	}
}

func TestIdentityAppliesHeaders(t *testing.T) {
	id := NewIdentity(testVocab(), rand.New(rand.NewSource(1)))
	h := http.Header{}
	id.Apply(h)

	assert.NotEmpty(t, h.Get("User-Agent"))
	assert.NotEmpty(t, h.Get("Accept"))
	assert.NotEmpty(t, h.Get("Accept-Language"))
	assert.NotEmpty(t, h.Get("Accept-Encoding"))
	assert.Contains(t, []string{"keep-alive", "close"}, h.Get("Connection"))
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Identity{UserAgent: "ua-1", Accept: "*/*", Language: "en", Encoding: "gzip"}
	b := Identity{UserAgent: "ua-2", Accept: "*/*", Language: "en", Encoding: "gzip"}
	assert.Equal(t, a.Fingerprint(), a.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}

func TestIdentityRotationProducesVariety(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[NewIdentity(testVocab(), rng).Fingerprint()] = true
	}
	assert.Greater(t, len(seen), 3, "rotation should produce multiple fingerprints")
}

func TestHTTPFetcherSendsIdentity(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewHTTP(ratelimit.NoopLimiter{}, 5*time.Second, slog.Default())
	id := Identity{UserAgent: "test-agent", Accept: "*/*", Language: "en", Encoding: "gzip", Connection: "close"}
	require.NoError(t, f.Fetch(context.Background(), srv.URL, id))
	assert.Equal(t, "test-agent", gotUA)
}

func TestHTTPFetcherNon2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTP(ratelimit.NoopLimiter{}, 5*time.Second, slog.Default())
	assert.NoError(t, f.Fetch(context.Background(), srv.URL, Identity{Connection: "close"}))
}

func TestHTTPFetcherBadURL(t *testing.T) {
	f := NewHTTP(ratelimit.NoopLimiter{}, time.Second, slog.Default())
	err := f.Fetch(context.Background(), "http://127.0.0.1:1", Identity{Connection: "close"})
	assert.Error(t, err)
}

func TestHTTPFetcherHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	f := NewHTTP(ratelimit.NoopLimiter{}, 10*time.Second, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, f.Fetch(ctx, srv.URL, Identity{Connection: "close"}))
}

func TestNoopFetcherAlwaysSucceeds(t *testing.T) {
	f := NoopFetcher{Logger: slog.Default()}
	assert.NoError(t, f.Fetch(context.Background(), "https://example.com", Identity{}))
}
