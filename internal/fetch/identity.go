package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/quietriver/chaff/internal/catalog"
)

// Identity is one rendered browser fingerprint: the header set a worker
// presents until its next rotation.
type Identity struct {
	UserAgent  string
	Accept     string
	Language   string
	Encoding   string
	Referer    string
	Connection string
	DNT        string // empty when omitted
	CacheCtl   string // empty when omitted
}

// NewIdentity draws a fresh fingerprint from the catalog vocabularies.
// Optional headers (DNT, Referer, Cache-Control) appear probabilistically,
// matching real browser traffic where not every request carries them.
func NewIdentity(vocab catalog.Identity, rng *rand.Rand) Identity {
	id := Identity{
		UserAgent:  pick(vocab.UserAgents, rng),
		Accept:     pick(vocab.Accept, rng),
		Language:   pick(vocab.Languages, rng),
		Encoding:   pick(vocab.Encodings, rng),
		Referer:    pick(vocab.Referers, rng),
		Connection: pick([]string{"keep-alive", "close"}, rng),
	}
	if rng.Float64() > 0.3 {
		id.DNT = strconv.Itoa(rng.Intn(2))
	}
	if rng.Float64() > 0.5 {
		id.CacheCtl = pick([]string{"max-age=0", "no-cache", "no-store"}, rng)
	}
	return id
}

func pick(vals []string, rng *rand.Rand) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[rng.Intn(len(vals))]
}

// Apply sets the identity's headers on an outgoing request.
func (id Identity) Apply(h http.Header) {
	h.Set("User-Agent", id.UserAgent)
	h.Set("Accept", id.Accept)
	h.Set("Accept-Language", id.Language)
	h.Set("Accept-Encoding", id.Encoding)
	h.Set("Connection", id.Connection)
	if id.Referer != "" {
		h.Set("Referer", id.Referer)
	}
	if id.DNT != "" {
		h.Set("DNT", id.DNT)
	}
	if id.CacheCtl != "" {
		h.Set("Cache-Control", id.CacheCtl)
	}
}

// Fingerprint returns a short stable digest of the identity, used to count
// distinct fingerprints in the confusion score.
func (id Identity) Fingerprint() string {
	sum := sha256.Sum256([]byte(id.UserAgent + "|" + id.Accept + "|" + id.Language + "|" + id.Encoding))
	return hex.EncodeToString(sum[:8])
}
