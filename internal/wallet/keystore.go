package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// DefaultKeyName is the entry the server keypair is stored under.
const DefaultKeyName = "presale_wallet_keypair"

type encodedKeypair struct {
	PublicKeyBase58 string `json:"publicKeyBase58"`
	SecretKeyBase58 string `json:"secretKeyBase58"`
}

// Keystore is a JSON file of named base58 keypairs.
type Keystore struct {
	path    string
	keyName string
}

// NewKeystore returns a keystore at path. An empty keyName uses DefaultKeyName.
func NewKeystore(path, keyName string) *Keystore {
	if keyName == "" {
		keyName = DefaultKeyName
	}
	return &Keystore{path: path, keyName: keyName}
}

// Path returns the keystore file path.
func (k *Keystore) Path() string {
	return k.path
}

// Load returns the stored private key. Returns ErrKeyNotFound if absent.
func (k *Keystore) Load() (solanago.PrivateKey, error) {
	entries, err := k.read()
	if err != nil {
		return nil, err
	}

	enc, ok := entries[k.keyName]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrKeyNotFound, k.keyName, k.path)
	}
	return decodeKeypair(enc)
}

// Save stores key under the key name, keeping other entries.
func (k *Keystore) Save(key solanago.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(key))
	}

	entries, err := k.read()
	if err != nil {
		return err
	}
	entries[k.keyName] = encodedKeypair{
		PublicKeyBase58: key.PublicKey().String(),
		SecretKeyBase58: base58.Encode(key),
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	return writeFileAtomic(k.path, data)
}

// LoadOrGenerate loads the key, creating and saving a new one when absent.
func (k *Keystore) LoadOrGenerate() (key solanago.PrivateKey, generated bool, err error) {
	key, err = k.Load()
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, false, err
	}

	key, err = solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, false, fmt.Errorf("generate keypair: %w", err)
	}
	if err := k.Save(key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// read returns all entries; a missing file is an empty keystore.
func (k *Keystore) read() (map[string]encodedKeypair, error) {
	entries := make(map[string]encodedKeypair)

	data, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse keystore %s: %w", k.path, err)
	}
	return entries, nil
}

func decodeKeypair(enc encodedKeypair) (solanago.PrivateKey, error) {
	secret, err := base58.Decode(enc.SecretKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secret: %v", ErrInvalidKey, err)
	}
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret is %d bytes, want %d", ErrInvalidKey, len(secret), ed25519.PrivateKeySize)
	}

	key := solanago.PrivateKey(secret)
	if enc.PublicKeyBase58 != "" && key.PublicKey().String() != enc.PublicKeyBase58 {
		return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKey)
	}
	return key, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fmt.Errorf("create temp keystore: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod keystore: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close keystore: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace keystore: %w", err)
	}
	return nil
}
