package app

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/bft-labs/dropship/internal/domain"
)

// Signer produces signatures for the addresses it holds keys for.
type Signer interface {
	Sign(addr domain.Address, message []byte) (domain.Signature, error)
}

// Keyring holds the signing keys of a run: the custodial keys loaded at
// start and, in co-signing modes, the recipient keys read from the source.
// Keys are only ever added.
type Keyring struct {
	mu   sync.RWMutex
	keys map[domain.Address]ed25519.PrivateKey
}

// NewKeyring creates a keyring holding keys.
func NewKeyring(keys ...ed25519.PrivateKey) *Keyring {
	k := &Keyring{keys: make(map[domain.Address]ed25519.PrivateKey, len(keys))}
	for _, key := range keys {
		k.Add(key)
	}
	return k
}

// Add stores key and returns its address.
func (k *Keyring) Add(key ed25519.PrivateKey) domain.Address {
	addr := AddressOf(key)
	k.mu.Lock()
	k.keys[addr] = key
	k.mu.Unlock()
	return addr
}

// Has reports whether the keyring can sign for addr.
func (k *Keyring) Has(addr domain.Address) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[addr]
	return ok
}

// Sign signs message with the key for addr.
func (k *Keyring) Sign(addr domain.Address, message []byte) (domain.Signature, error) {
	k.mu.RLock()
	key, ok := k.keys[addr]
	k.mu.RUnlock()
	if !ok {
		return domain.Signature{}, fmt.Errorf("%w: %s", domain.ErrMissingSigner, addr)
	}
	var sig domain.Signature
	copy(sig[:], ed25519.Sign(key, message))
	return sig, nil
}

// RecipientParser returns the parser used to normalize recipient
// identifiers. In co-signing modes identifiers are secret keys, which are
// added to the keyring; otherwise they are plain addresses.
func (k *Keyring) RecipientParser(coSigned bool) domain.RecipientParser {
	if !coSigned {
		return domain.ParseAddress
	}
	return func(raw string) (domain.Address, error) {
		key, err := ParseSecret(raw)
		if err != nil {
			return domain.Address{}, err
		}
		return k.Add(key), nil
	}
}

// AddressOf returns the address of an ed25519 key.
func AddressOf(key ed25519.PrivateKey) domain.Address {
	var a domain.Address
	copy(a[:], key.Public().(ed25519.PublicKey))
	return a
}

// ParseSecret decodes a secret key given as base58 (64-byte keypair or
// 32-byte seed) or as a JSON byte array.
func ParseSecret(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: secret key array: %v", domain.ErrInvalidInput, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: secret key byte %d out of range", domain.ErrInvalidInput, i)
			}
			raw[i] = byte(v)
		}
	} else {
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: secret key: %v", domain.ErrInvalidInput, err)
		}
		raw = b
	}
	return secretFromBytes(raw)
}

func secretFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: secret key public half does not match seed", domain.ErrInvalidInput)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: secret key has %d bytes", domain.ErrInvalidInput, len(raw))
	}
}
