package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"outreach_gateway/internal/auth"
	"outreach_gateway/internal/storage"
)

func main() {
	keySize := flag.Int("size", 32, "encryption key size in bytes (16, 24 or 32)")
	tenant := flag.String("tenant", "", "issue a session token for this tenant instead of a key")
	user := flag.String("user", "dev", "user id for the issued token")
	roles := flag.String("roles", "admin", "comma separated roles for the issued token")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "lifetime of the issued token")
	flag.Parse()

	if *tenant == "" {
		key, err := storage.GenerateKey(*keySize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to generate key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	// Token mode signs with the gateway's JWT_SECRET
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintf(os.Stderr, "ERROR: JWT_SECRET must be set to issue a token\n")
		os.Exit(1)
	}

	parsed, err := auth.ParseRoles(*roles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.GenerateJWT([]byte(secret), *tenant, *user, parsed, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Expires: %s\n", time.Unix(expiresAt, 0).Format(time.RFC3339))
}
