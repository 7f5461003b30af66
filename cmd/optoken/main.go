// Command optoken mints an operator JWT for local tooling and reader clients.
package main

import (
	"flag"
	"fmt"
	"os"

	"nfc-card-ledger/config"
	"nfc-card-ledger/internal/service"
)

func main() {
	operator := flag.String("operator", "", "operator id placed in the token subject")
	configFile := flag.String("config", os.Getenv("POS_CONFIG_FILE"), "path to config file")
	flag.Parse()

	if *operator == "" {
		fmt.Fprintln(os.Stderr, "usage: optoken -operator <id> [-config config.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret is not set (POS_JWT_SECRET)")
		os.Exit(1)
	}

	token, expiresAt, err := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer).Generate(*operator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "operator %s, expires %s\n", *operator, expiresAt.Format("2006-01-02 15:04:05 MST"))
}
