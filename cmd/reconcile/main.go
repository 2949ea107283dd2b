package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/database"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
	"github.com/ManuelReschke/VoteFox/internal/pkg/reconcile"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	database.SetupDatabase()
	repos := repository.NewFactory(database.GetDB()).GetRepositories()
	l := ledger.New(database.GetDB())

	paymentCfg := payment.ConfigFromEnv()
	if command == "once" || command == "status" {
		if err := paymentCfg.Validate(); err != nil {
			log.Fatalf("Invalid payment configuration: %v", err)
		}
	}
	job := reconcile.NewJob(reconcile.ConfigFromEnv(), l, repos.Transaction, repos.USSDSession, payment.NewClient(paymentCfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		result any
		err    error
	)
	switch command {
	case "once":
		result, err = job.RunOnce(ctx)
	case "status":
		result, err = job.StatusSweep(ctx)
	case "credit":
		result, err = job.CreditingSweep(ctx)
	case "sessions":
		var expired int64
		expired, err = job.SessionSweep(ctx)
		result = map[string]int64{"sessions_expired": expired}
	default:
		printUsage()
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		log.Fatalf("Reconciliation %s failed: %v", command, err)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/reconcile/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  once     - Run every pass once")
	fmt.Println("  status   - Query the gateway for stale pending transactions")
	fmt.Println("  credit   - Credit missing votes of completed transactions")
	fmt.Println("  sessions - Expire idle USSD sessions")
}
