// Command conote-server runs the collaborative note service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/and161185/conote/internal/config"
	"github.com/and161185/conote/internal/migrate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// flags overlay the loaded configuration when set explicitly.
type flags struct {
	configPath string
	addr       string
	dsn        string
	jwtKey     string
	dev        bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, f)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	}

	cmd := &cobra.Command{
		Use:           "conote-server",
		Short:         "Collaborative note service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&f.addr, "addr", "", "HTTP listen address")
	pf.StringVar(&f.dsn, "dsn", "", "PostgreSQL DSN")
	pf.StringVar(&f.jwtKey, "jwt-key", "", "HS256 signing key")
	pf.BoolVar(&f.dev, "dev", false, "expose internal error detail")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE:  serve,
	})

	mig := &cobra.Command{Use: "migrate", Short: "Apply or roll back schema migrations"}
	mig.AddCommand(
		migrateCmd("up", "Apply every pending migration", &f, migrate.Up),
		migrateCmd("down", "Roll back the latest migration", &f, migrate.Down),
	)
	cmd.AddCommand(mig)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conote-server %s (build: %s)\n", version, buildDate)
		},
	})
	return cmd
}

func migrateCmd(use, short string, f *flags, step func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("migrate %s: database dsn is not set", use)
			}
			return step(cmd.Context(), cfg.Database.DSN)
		},
	}
}

func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	fl := cmd.Flags()
	if fl.Changed("addr") {
		cfg.HTTP.Addr = f.addr
	}
	if fl.Changed("dsn") {
		cfg.Database.DSN = f.dsn
	}
	if fl.Changed("jwt-key") {
		cfg.Auth.JWTKey = f.jwtKey
	}
	if fl.Changed("dev") {
		cfg.Dev = f.dev
	}
	return cfg, nil
}
