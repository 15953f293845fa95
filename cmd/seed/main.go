package main

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"momopay/internal/config"
	"momopay/internal/db"
	"momopay/internal/model"
	"momopay/internal/repository"
)

// Seeds a handful of unpaid demo orders for local testing of the payment flow.
func main() {
	log.Println("Starting seed script...")

	cfg := config.Load()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	if err := gormDB.AutoMigrate(&model.Order{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	orderRepo := repository.NewOrderRepository(gormDB)
	ctx := context.Background()

	amounts := []int64{1500, 5000, 12500, 30000, 75000}
	created := 0
	for i, amount := range amounts {
		order := &model.Order{
			Reference:     fmt.Sprintf("ORD-DEMO-%03d", i+1),
			Amount:        decimal.NewFromInt(amount),
			Currency:      "RWF",
			PaymentStatus: model.OrderUnpaid,
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			log.Printf("Skipping order %s: %v", order.Reference, err)
			continue
		}
		log.Printf("Created order %s (%s RWF) id=%s", order.Reference, order.Amount.StringFixed(0), order.ID)
		created++
	}

	log.Printf("Seed complete: %d orders created", created)
}
