package cliconfig

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/bft-labs/dropship/internal/app"
)

// ErrInvalidMnemonic is returned for a word list that fails the BIP-39 checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// LoadSigner resolves a signing key from source, which is one of:
//   - a path to a keyfile holding a JSON byte array or a base58 secret
//   - a base58 secret or JSON byte array given inline
//   - a BIP-39 mnemonic; the key is the first 32 bytes of its seed
//
// passphrase only applies to mnemonics.
func LoadSigner(source, passphrase string) (ed25519.PrivateKey, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty signer")
	}

	if path := expandHome(source); FileExists(path) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keyfile: %w", err)
		}
		key, err := app.ParseSecret(string(b))
		if err != nil {
			return nil, fmt.Errorf("keyfile %s: %w", path, err)
		}
		return key, nil
	}

	if words := strings.Fields(source); len(words) >= 12 {
		mnemonic := strings.Join(words, " ")
		if !bip39.IsMnemonicValid(mnemonic) {
			return nil, ErrInvalidMnemonic
		}
		seed := bip39.NewSeed(mnemonic, passphrase)
		return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
	}

	return app.ParseSecret(source)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(h, p[2:])
}
