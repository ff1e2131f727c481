package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/config"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/pkg/dto"
)

func main() {
	if len(os.Args) > 2 {
		fmt.Println("Usage: issue-admin-token [telegram-id]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	adminID := cfg.AdminID
	if len(os.Args) == 2 {
		adminID, err = strconv.ParseInt(os.Args[1], 10, 64)
		if err != nil {
			log.Fatalf("Invalid telegram id %q: %v", os.Args[1], err)
		}
	}
	if adminID == 0 {
		log.Fatalf("No admin id given and ADMIN_ID is not set")
	}
	if cfg.AdminID != 0 && adminID != cfg.AdminID {
		log.Printf("Warning: %d is not the configured ADMIN_ID; the API will reject this token", adminID)
	}

	token, err := services.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry).GenerateAdminToken(adminID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	out, err := json.MarshalIndent(dto.TokenResponse{
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
	}, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode token: %v", err)
	}

	fmt.Println(string(out))
}
