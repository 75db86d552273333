package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"reseller-ledger/config"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// token issues a bearer token for a seller or an admin. Seller accounts are
// provisioned outside the ledger, so this is how operators hand out access.
func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the config file")
	seller := flag.String("seller", "", "seller id (uuid)")
	role := flag.String("role", ports.RoleSeller, "token role: seller|admin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	sellerID, err := uuid.Parse(*seller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -seller: %v\n", err)
		os.Exit(2)
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	token, expiresAt, err := tokenSvc.Generate(sellerID, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
