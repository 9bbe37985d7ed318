package main

import (
	"fmt"
	"os"

	"github.com/agora-protocol/relay/internal/crypto"
)

func main() {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "key generation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Public key (DER hex):  %s\n", pub)
	fmt.Printf("Private key (DER hex): %s\n", priv)
}
