package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/adminapi"
	"github.com/vitaspro/storefront/internal/app"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/storefront"
	"github.com/vitaspro/storefront/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Vitas Pro storefront catalog service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default storefront.yml or /etc/storefront.yml)")

	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the web server", RunE: runServe},
		pullCommand(),
		pushCommand(),
		&cobra.Command{
			Use:   "hash-password <plain>",
			Short: "Print the bcrypt hash to put in web.admin_password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(hash))
				return nil
			},
		},
		&cobra.Command{
			Use:   "initdb",
			Short: "Drop and recreate the database tables",
			RunE:  runInitDB,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	webserver.Init(application)
	adminapi.Init()
	storefront.Init()

	errc := make(chan error, 1)
	go func() {
		errc <- webserver.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case s := <-sig:
		zap.S().Infof("received %s, shutting down", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return webserver.Shutdown(ctx)
}

// openCatalog wires the catalog without the web server, scheduler or metrics.
func openCatalog() (*app.Application, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	app.InitLogger(cfg.Logger)
	a := app.NewApplication(cfg)
	if cfg.Storage.Backend == config.BackendDatabase {
		db, err := app.OpenDatabase(cfg.Database, cfg.System.Workdir)
		if err != nil {
			return nil, err
		}
		a.OverrideDB(db)
		if err := a.MigrateDB(false); err != nil {
			return nil, err
		}
	}
	if err := a.Setup(nil); err != nil {
		return nil, err
	}
	return a, nil
}

func pullCommand() *cobra.Command {
	var (
		force bool
		out   string
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Read the products document and print or save it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCatalog()
			if err != nil {
				return err
			}
			defer a.Release()

			snap, err := a.Catalog().List(cmd.Context(), force)
			if err != nil {
				return err
			}
			data, err := catalog.EncodeDocument(snap.Products)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d products (version %s, via %s) written to %s\n",
				len(snap.Products), snap.Version, snap.Source, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass caches")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func pushCommand() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "push <file.json>",
		Short: "Replace the products document with a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			products, err := catalog.DecodeDocument(data)
			if err != nil {
				return errors.Wrapf(err, "parse %s", args[0])
			}

			a, err := openCatalog()
			if err != nil {
				return err
			}
			defer a.Release()

			res, err := a.Catalog().Replace(cmd.Context(), products, catalog.Version(version))
			if err != nil {
				return err
			}
			confirmed := "confirmed"
			if !res.Confirmed {
				confirmed = "not confirmed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d products written via %s (%s), version %s\n",
				len(products), res.Strategy, confirmed, res.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "if-version", "", "only write when the stored version matches")
	return cmd
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	app.InitLogger(cfg.Logger)
	db, err := app.OpenDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return err
	}
	a := app.NewApplication(cfg)
	a.OverrideDB(db)
	a.InitDb()
	fmt.Fprintln(cmd.OutOrStdout(), "database tables recreated")
	return nil
}
