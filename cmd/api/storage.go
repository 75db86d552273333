package main

import (
	"context"
	"fmt"

	"reseller-ledger/config"
	"reseller-ledger/internal/adapter/storage/memory"
	pgStorage "reseller-ledger/internal/adapter/storage/postgres"
	"reseller-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// repositories is the storage driver's view of the ledger.
type repositories struct {
	sellers    ports.SellerRepository
	products   ports.ProductRepository
	wallets    ports.WalletRepository
	movements  ports.MovementRepository
	orders     ports.OrderRepository
	payments   ports.PaymentTransactionRepository
	events     ports.WebhookEventRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.New()
		if cfg.Storage.SeedFile != "" {
			if err := store.LoadSeed(cfg.Storage.SeedFile); err != nil {
				return nil, fmt.Errorf("load seed: %w", err)
			}
			log.Info().Str("file", cfg.Storage.SeedFile).Msg("Memory store seeded")
		}
		return &repositories{
			sellers:    memory.NewSellerRepo(store),
			products:   memory.NewProductRepo(store),
			wallets:    memory.NewWalletRepo(store),
			movements:  memory.NewMovementRepo(store),
			orders:     memory.NewOrderRepo(store),
			payments:   memory.NewPaymentTransactionRepo(store),
			events:     memory.NewWebhookEventRepo(store),
			audit:      memory.NewAuditRepo(store),
			transactor: store,
			health:     store,
			close:      func() {},
		}, nil

	case "postgres":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := pgStorage.Migrate(ctx, pool, "up"); err != nil {
				pool.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			log.Info().Msg("Migrations applied")
		}
		return &repositories{
			sellers:    pgStorage.NewSellerRepo(pool),
			products:   pgStorage.NewProductRepo(pool),
			wallets:    pgStorage.NewWalletRepo(pool),
			movements:  pgStorage.NewMovementRepo(pool),
			orders:     pgStorage.NewOrderRepo(pool),
			payments:   pgStorage.NewPaymentTransactionRepo(pool),
			events:     pgStorage.NewWebhookEventRepo(pool),
			audit:      pgStorage.NewAuditRepo(pool),
			transactor: pgStorage.NewTransactor(pool),
			health:     pgStorage.SchemaProbe(pool),
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
