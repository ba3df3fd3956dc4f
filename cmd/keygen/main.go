package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	// Generate new secp256k1 account key
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal("Failed to generate private key:", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	// Secret for signing API bearer tokens
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal("Failed to generate auth secret:", err)
	}

	fmt.Println("=== ACCOUNT KEY (Keep this secret!) ===")
	fmt.Println("Set as ledger.private_key in config.yaml or as GOMOKU_LEDGER_PRIVATE_KEY:")
	fmt.Println()
	fmt.Println(hex.EncodeToString(crypto.FromECDSA(privateKey)))
	fmt.Println()
	fmt.Println("=== ACCOUNT ADDRESS (Fund this before registering) ===")
	fmt.Println()
	fmt.Println(address.Hex())
	fmt.Println()
	fmt.Println("=== AUTH SECRET (Optional) ===")
	fmt.Println("Set as server.auth_secret or GOMOKU_SERVER_AUTH_SECRET to require tokens on writes:")
	fmt.Println()
	fmt.Println(hex.EncodeToString(secret))
	fmt.Println()
	fmt.Println("=== IMPORTANT SECURITY NOTES ===")
	fmt.Println("1. NEVER commit the private key to version control")
	fmt.Println("2. Anyone holding the key can spend the account's funds and vault balance")
	fmt.Println("3. Use environment variables or secure key management in production")
}
