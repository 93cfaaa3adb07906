package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"favsync/internal/app"
	"favsync/internal/config"
	"favsync/internal/encryption"
	"favsync/internal/model"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a FavApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Add", "Login").
func newApp(cmd *cobra.Command, operation, itemID string) (*app.FavApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{LogLevel: slog.LevelWarn}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.LogLevel = slog.LevelDebug
	}

	a, err := app.NewFavApp(cmd.Context(), cfg, operation, itemID, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "favs",
	Short:         "Favorites that follow you from this device to your account",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.Encryption.Enabled = encrypt

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if encrypt {
			if err := encryption.GenerateKey(cfg.Encryption.KeyPath); err != nil {
				return fmt.Errorf("generating local encryption key: %w", err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		if encrypt {
			fmt.Printf("Key:      %s\n", cfg.Encryption.KeyPath)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		return (&config.Manager{}).Write(os.Stdout, cfg)
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		hydrate, _ := cmd.Flags().GetBool("hydrate")
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "List", "")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Favorites(cmd.Context(), hydrate)
		if err != nil {
			return err
		}
		return printFavorites(os.Stdout, format, records)
	},
}

var addCmd = &cobra.Command{
	Use:   "add ITEM_ID",
	Short: "Add a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Add", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Add(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("adding favorite: %w", err)
		}
		fmt.Printf("Added %s\n", args[0])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove ITEM_ID",
	Aliases: []string{"rm"},
	Short:   "Remove a favorite",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Remove", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Remove(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("removing favorite: %w", err)
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle ITEM_ID",
	Short: "Add or remove a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Toggle", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		now, err := a.Toggle(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("toggling favorite: %w", err)
		}
		if now {
			fmt.Printf("Added %s\n", args[0])
		} else {
			fmt.Printf("Removed %s\n", args[0])
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login OWNER_ID",
	Short: "Sign in and merge this device's favorites into the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Login", "")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Login(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}

		fmt.Printf("Signed in as %s\n", args[0])
		if result != nil {
			fmt.Printf("Moved %d favorite(s) from this device to your account\n", result.Migrated)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Logout", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}
		fmt.Println("Signed out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity, connectivity and tier counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Status", "")
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printStatus(os.Stdout, format, status)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print favorites and connectivity changes as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		refresh, _ := cmd.Flags().GetDuration("refresh")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cmd, "Watch", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if metricsAddr != "" {
			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           metricsMux(a),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		return a.Watch(ctx, refresh, app.WatchHandlers{
			Snapshot: func(records []model.FavoriteRecord) {
				fmt.Printf("%s  %d favorite(s)\n", time.Now().Format("15:04:05"), len(records))
			},
			Merge: func(r model.MergeResult) {
				fmt.Printf("%s  moved %d favorite(s) to %s\n", r.At.Format("15:04:05"), r.Migrated, r.OwnerID)
			},
			Connectivity: func(offline bool) {
				state := "online"
				if offline {
					state = "offline: changes may fail until the connection returns"
				}
				fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), state)
			},
		})
	},
}

func metricsMux(a *app.FavApp) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt favorites stored on this device")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("format", "f", "", "Output format: table, json or yaml (default table on a terminal, json otherwise)")
	listCmd.Flags().Bool("hydrate", false, "Refresh display data from the item lookup")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("format", "f", "", "Output format: table, json or yaml")
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	watchCmd.Flags().Duration("refresh", 30*time.Second, "Reload favorites on this interval; 0 disables")
}
