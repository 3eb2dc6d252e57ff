package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
)

// Manually settles payments against Paystack, e.g. after a missed webhook.
//
//	reconcile-payment -reference GB_LSN5K2Q0_AB12CD
//	reconcile-payment -pending -older-than 30m
func main() {
	var (
		reference string
		pending   bool
		olderThan time.Duration
		limit     int
	)
	flag.StringVar(&reference, "reference", "", "Payment reference to verify and settle")
	flag.BoolVar(&pending, "pending", false, "Re-verify every stale pending payment")
	flag.DurationVar(&olderThan, "older-than", 10*time.Minute, "With -pending, only payments created before now minus this")
	flag.IntVar(&limit, "limit", 100, "With -pending, maximum payments to check")
	flag.Parse()

	if (reference == "") == !pending {
		fmt.Fprintln(os.Stderr, "exactly one of -reference or -pending is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	paystack := services.NewPaystackService(&cfg.Payment, logger)
	if !paystack.IsConfigured() {
		logger.Fatal("PAYSTACK_SECRET_KEY is not set")
	}

	payments := database.NewPaymentRepository(db)
	events := database.NewPaymentEventRepository(db, logger)
	bridge := services.NewPaymentBridge(payments, paystack, &cfg.Payment, logger)
	reconciler := services.NewReconciliationService(payments, bridge, events, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if pending {
		paid, err := reconciler.ReconcilePending(ctx, olderThan, limit)
		if err != nil {
			logger.Fatalf("Re-verification failed: %v", err)
		}
		fmt.Printf("Stale pending payments settled as paid: %d\n", paid)
		return
	}

	result, err := reconciler.Reconcile(ctx, reference, models.PaymentSourceSystem)
	if err != nil {
		logger.Fatalf("Reconcile failed: %v", err)
	}

	fmt.Printf("Reference:      %s\n", result.Reference)
	fmt.Printf("Booking:        %d\n", result.BookingID)
	fmt.Printf("Outcome:        %s\n", result.Outcome)
	fmt.Printf("Payment status: %s\n", result.PaymentStatus)
	fmt.Printf("Booking status: %s\n", result.BookingStatus)
	if result.Outcome == services.OutcomeMismatch {
		fmt.Println("Gateway collected the money but the booking was no longer payable; refund manually.")
		os.Exit(1)
	}
}
