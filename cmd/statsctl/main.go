// statsctl checks and repairs the per-user stats against the points
// ledger, and mints development access tokens.
//
//	statsctl verify            list users whose stats drift from the ledger
//	statsctl rebuild           rewrite drifted stats from the ledger
//	statsctl token --user ID   print a signed access token
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/bug-hunting/internal/config"
	"github.com/iliyamo/bug-hunting/internal/database"
	"github.com/iliyamo/bug-hunting/internal/logger"
	"github.com/iliyamo/bug-hunting/internal/repository"
	"github.com/iliyamo/bug-hunting/internal/service"
	"github.com/iliyamo/bug-hunting/internal/utils"
)

// exitCode lets run report a non-error failure status, such as drift found.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	if err := run(os.Args[1:]); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		userID  string
		role    string
		ttl     time.Duration
		timeout time.Duration
	)
	flagSet := pflag.NewFlagSet("statsctl", pflag.ContinueOnError)
	flagSet.StringVar(&userID, "user", "", "user id for the token subject")
	flagSet.StringVar(&role, "role", "user", "role claim for the token (user or admin)")
	flagSet.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for verify and rebuild")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: statsctl verify|rebuild|token [flags]")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return exitCode(2)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cmd := flagSet.Arg(0)
	if cmd == "token" {
		tok, err := utils.NewAccessToken(cfg.JWTSecret, userID, role, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok.Token)
		return nil
	}
	if cmd != "verify" && cmd != "rebuild" {
		return fmt.Errorf("unknown command %q", cmd)
	}

	log := logger.New(cfg.Env)
	driver := database.Driver(cfg.DBDriver)
	db, err := database.Open(database.Options{
		Driver: driver, User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost,
		Port: cfg.DBPort, Name: cfg.DBName, SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rec := service.NewStatsReconciler(db, repository.NewPointsPaymentRepo(db), repository.NewStatsRepo(db, driver), log)

	if cmd == "rebuild" {
		n, err := rec.Rebuild(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("rebuilt stats for %d user(s)\n", n)
		return nil
	}
	drift, err := rec.Verify(ctx)
	if err != nil {
		return err
	}
	if drift == nil {
		drift = []service.Drift{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(drift); err != nil {
		return err
	}
	if len(drift) > 0 {
		return exitCode(3)
	}
	return nil
}
