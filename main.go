package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"kuji/auth"
	"kuji/cmd"
	"kuji/config"
	"kuji/database"
)

func main() {
	app := &cli.App{
		Name:  "kuji",
		Usage: "live-stream prize draw board",
		Action: func(c *cli.Context) error {
			return serve(c.Context)
		},
		Commands: []*cli.Command{
			commandServe(),
			commandMigrate(),
			commandToken(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("Application error")
	}
}

func serve(ctx context.Context) error {
	cmd.ConfigureLogging(config.Get())
	return cmd.Run(ctx)
}

func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP and websocket server",
		Action: func(c *cli.Context) error {
			return serve(c.Context)
		},
	}
}

func commandMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the database schema",
		Subcommands: []*cli.Command{
			{
				Name: "up",
				Action: func(c *cli.Context) error {
					return database.MigrateUp(database.MigrationDatabaseURL())
				},
			},
			{
				Name:      "down",
				ArgsUsage: "[steps]",
				Action: func(c *cli.Context) error {
					steps := 1
					if c.Args().Present() {
						n, err := strconv.Atoi(c.Args().First())
						if err != nil {
							return fmt.Errorf("invalid steps %q: %w", c.Args().First(), err)
						}
						steps = n
					}
					return database.MigrateDown(database.MigrationDatabaseURL(), steps)
				},
			},
			{
				Name: "status",
				Action: func(c *cli.Context) error {
					return database.MigrateStatus(database.MigrationDatabaseURL())
				},
			},
		},
	}
}

// commandToken mints an operator token for local testing
func commandToken() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue an operator JWT for a seller",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "seller", Required: true},
			&cli.IntFlag{Name: "hours", Value: 0},
		},
		Action: func(c *cli.Context) error {
			sellerID, err := uuid.Parse(c.String("seller"))
			if err != nil {
				return fmt.Errorf("invalid seller id: %w", err)
			}

			cfg := config.Get()
			expiry := cfg.JWTExpiry()
			if hours := c.Int("hours"); hours > 0 {
				expiry = time.Duration(hours) * time.Hour
			}

			token, err := auth.NewIssuer(cfg.JWTSecret, expiry).GenerateToken(sellerID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
