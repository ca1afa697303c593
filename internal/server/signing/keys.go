// Package signing owns the server's signing identities: loading and
// generating ed25519 keys, tracking cached balances, and choosing a funded
// identity for each submission. Key material never leaves this package.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const seedFileExt = ".seed"

// Identity is one ed25519 signing identity. It implements ledger.Signer.
type Identity struct {
	ref  string
	priv ed25519.PrivateKey
	addr string
}

// Ref is the stable local name of the identity (its seed file stem).
func (i *Identity) Ref() string { return i.ref }

// Address is the network-visible account derived from the public key.
func (i *Identity) Address() string { return i.addr }

func (i *Identity) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(i.priv, digest), nil
}

func newIdentity(ref string, seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity %s: seed must be %d bytes, got %d", ref, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		ref:  ref,
		priv: priv,
		addr: base64.RawURLEncoding.EncodeToString(pub),
	}, nil
}

// LoadIdentities reads every *.seed file in dir as one identity. A missing
// directory yields zero identities, not an error: the server may run
// without archival capability until keys are provisioned.
func LoadIdentities(dir string) ([]*Identity, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading key dir: %w", err)
	}

	var identities []*Identity
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), seedFileExt) {
			continue
		}
		seed, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading seed %s: %w", e.Name(), err)
		}
		id, err := newIdentity(strings.TrimSuffix(e.Name(), seedFileExt), seed)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, nil
}

// GenerateIdentity creates a fresh identity and persists its seed in dir.
func GenerateIdentity(dir string) (*Identity, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key dir: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}

	ref := uuid.NewString()
	seed := priv.Seed()
	if err := os.WriteFile(filepath.Join(dir, ref+seedFileExt), seed, 0o600); err != nil {
		return nil, fmt.Errorf("writing seed: %w", err)
	}
	return newIdentity(ref, seed)
}
