// Package main creates or inspects the keystore used by the server's signer.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	solanago "github.com/gagliardetto/solana-go"

	"solana-presale/internal/config"
	"solana-presale/internal/wallet"
)

// keyInfo is printed with --json.
type keyInfo struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Generated bool   `json:"generated"`
}

func main() {
	defaultPath := os.Getenv("KEYPAIR_PATH")
	if defaultPath == "" {
		defaultPath = config.DefaultKeypairPath
	}

	path := flag.String("keypair", defaultPath, "Keystore file path")
	name := flag.String("name", wallet.DefaultKeyName, "Entry name inside the keystore")
	force := flag.Bool("force", false, "Replace an existing key")
	show := flag.Bool("show", false, "Print the stored public key without generating")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[keygen] ", log.LstdFlags)
	ks := wallet.NewKeystore(*path, *name)

	var (
		key       solanago.PrivateKey
		generated bool
		err       error
	)
	switch {
	case *show:
		key, err = ks.Load()
		if errors.Is(err, wallet.ErrKeyNotFound) {
			logger.Fatalf("No key %q in %s", *name, ks.Path())
		}
	case *force:
		key, err = solanago.NewRandomPrivateKey()
		if err == nil {
			err = ks.Save(key)
			generated = true
		}
	default:
		key, generated, err = ks.LoadOrGenerate()
	}
	if err != nil {
		logger.Fatalf("Keystore %s: %v", ks.Path(), err)
	}

	info := keyInfo{
		Path:      ks.Path(),
		Name:      *name,
		PublicKey: key.PublicKey().String(),
		Generated: generated,
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			logger.Fatalf("encode output: %v", err)
		}
		return
	}

	if generated {
		fmt.Printf("Generated new keypair in %s\n", info.Path)
	} else {
		fmt.Printf("Existing keypair in %s (use --force to replace)\n", info.Path)
	}
	fmt.Printf("Public key: %s\n", info.PublicKey)
}
