// Package main mints an admin bearer token for the credential API using the
// secret from the server configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/phrazzld/genrelay/internal/service/auth"
)

func main() {
	subject := flag.String("subject", "operator", "Subject recorded in the token")
	flag.Parse()

	token, expiresAt, err := mint(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}

func mint(subject string) (string, time.Time, error) {
	cfg, err := config.LoadAuth()
	if err != nil {
		return "", time.Time{}, err
	}

	tokens, err := auth.NewTokenService(*cfg)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokens.GenerateToken(context.Background(), subject)
}
