// Command migrate applies schema migrations and seed data.
//
// Usage:
//
//	migrate -dsn postgres://... up
//	migrate -dsn postgres://... down
//	migrate -dsn postgres://... seed
//	migrate -dsn postgres://... status
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"storegate.org/internal/migrate"
	"storegate.org/internal/store/pg"
)

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("STOREGATE_STORAGE_DSN"), "postgres dsn")
		migrationsDir = flag.String("migrations", "migrations", "migrations directory")
		seedsDir      = flag.String("seeds", "seeds", "seeds directory")
	)
	flag.Parse()

	if *dsn == "" {
		fatal("dsn required (flag -dsn or STOREGATE_STORAGE_DSN)")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		fatal("command required: up, down, seed, status")
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		fatal("open database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(store.DB(), *migrationsDir, *seedsDir)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		fatal("unknown command %q", cmd)
	}
	if err != nil {
		fatal("%s: %v", cmd, err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
