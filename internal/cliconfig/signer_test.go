package cliconfig

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func jsonKey(key ed25519.PrivateKey) string {
	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = fmt.Sprint(b)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestLoadSigner(t *testing.T) {
	key := ed25519.NewKeyFromSeed([]byte("0123456789abcdef0123456789abcdef"))

	keyfile := filepath.Join(t.TempDir(), "payer.json")
	if err := os.WriteFile(keyfile, []byte(jsonKey(key)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	seed := bip39.NewSeed(testMnemonic, "")
	fromMnemonic := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])

	tests := []struct {
		name   string
		source string
		want   ed25519.PrivateKey
	}{
		{"keyfile", keyfile, key},
		{"inline base58", base58.Encode(key), key},
		{"inline json", jsonKey(key), key},
		{"mnemonic", testMnemonic, fromMnemonic},
		{"mnemonic with extra whitespace", "  " + strings.ReplaceAll(testMnemonic, " ", "\n ") + " ", fromMnemonic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSigner(tt.source, "")
			if err != nil {
				t.Fatalf("LoadSigner() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("LoadSigner() returned a different key")
			}
		})
	}
}

func TestLoadSigner_Passphrase(t *testing.T) {
	plain, err := LoadSigner(testMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	salted, err := LoadSigner(testMnemonic, "extra")
	if err != nil {
		t.Fatal(err)
	}
	if plain.Equal(salted) {
		t.Error("passphrase did not change the derived key")
	}
}

func TestLoadSigner_Errors(t *testing.T) {
	bad := strings.Replace(testMnemonic, "about", "abandon", 1)

	if _, err := LoadSigner(bad, ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("LoadSigner(bad mnemonic) error = %v, want ErrInvalidMnemonic", err)
	}
	if _, err := LoadSigner("", ""); err == nil {
		t.Error("LoadSigner(\"\") expected error")
	}
	if _, err := LoadSigner("not-base58-0OIl", ""); err == nil {
		t.Error("LoadSigner(garbage) expected error")
	}
}
