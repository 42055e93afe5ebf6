package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"library-portal/config"
	"library-portal/devserver"
)

func (a *app) serveCommand() *cobra.Command {
	var addr, dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local library API backed by SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDevServer()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DB = dbPath
			}
			return a.serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env LIBRARY_DEV_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (env LIBRARY_DEV_DB)")
	return cmd
}

func (a *app) serve(ctx context.Context, cfg config.DevServer) error {
	db, err := devserver.NewDatabase(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.AdminPwd != "" {
		created, err := db.EnsureAdmin(cfg.Admin, cfg.AdminPwd)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			a.logger.Info("admin account created", "username", cfg.Admin)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           devserver.New(db, a.logger, devserver.Options{Prefix: cfg.Prefix, Rate: cfg.Rate, Burst: cfg.Burst}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", cfg.Addr, "prefix", cfg.Prefix, "db", cfg.DB)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
