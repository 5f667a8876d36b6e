package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"decylo/internal/app"
	"decylo/internal/config"
	"decylo/internal/db"
	"decylo/internal/engine"
	"decylo/internal/repo"
	"decylo/internal/server"
	"decylo/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "decylo",
	Short: "Decylo decision journal",
	Long: `Decylo is a decision journal that measures how good your judgment is.
- Decision: a choice you are facing, with 2-6 options rated for impact, effort and risk.
- Lifecycle: open -> decided (you committed to an option with a confidence) -> completed (you logged the outcome).
- Outcome: win, neutral or loss, logged once per decision. What you learned can be revised later.
- Insights: win rate, calibration gap, decision health and the judgment indices (PA, FT, RI, GM).
- Profile: your judgment archetype, momentum and strongest and weakest domains.
- Event log: every change is recorded; view with 'decylo log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DECYLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", app.DefaultUserID, "journal owner")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage journal config",
		Long:  "decylo.yml holds the journal time zone, the allowed categories, option limits and the insight windows.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var timezone string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default decylo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			doc := config.GenerateDefault(timezone)
			if _, err := config.FromYAML([]byte(doc)); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA time zone used for journal days")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file",
		Long:  "Validates the given file, or the workspace decylo.yml when no file is named. A missing workspace file is an error.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			cfg, err := loadConfigFile(viper.GetString("workspace"), file)
			if err != nil {
				return err
			}
			fmt.Printf("Config ok: timezone %s, %d categories\n", cfg.Journal.Timezone, len(cfg.Journal.Categories))
			return nil
		},
	}
}

func loadConfigFile(workspace, file string) (*config.Config, error) {
	if file != "" {
		return config.FromFile(file)
	}
	return config.Load(workspace)
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every decision, commitment, outcome and snapshot is appended to the event log.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				f.UserID = userID
				items, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyRevokeCmd())
	return k
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys of the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				keys, err := e.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				if err := e.RevokeAPIKey(ctx, userID, args[0]); err != nil {
					return err
				}
				fmt.Printf("revoked %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current user",
		Long:  "The key is printed once. Only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				key, plain, err := e.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, key.UserID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serve the journal over HTTP. Settings come from the environment:
DECYLO_ADDR, DECYLO_BASE_PATH, DECYLO_JWT_SECRET, DECYLO_TOKEN_TTL,
DECYLO_ALLOW_LEGACY_USER_HEADER, DECYLO_ALLOW_DEV_LOGIN and DECYLO_OTEL_ENDPOINT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.ServerFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				settings.BasePath = basePath
			}
			if settings.AllowDevLogin && settings.JWTSecret == "" {
				return fmt.Errorf("DECYLO_JWT_SECRET is required when dev login is enabled")
			}
			ctx := cmd.Context()
			shutdownTracing, err := telemetry.Setup(ctx, "decylo", settings.OTelEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(sctx)
			}()

			conn, cfg, err := app.Open(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			logger := newLogger()
			e := engine.New(conn, cfg)
			e.Logger = logger
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: settings.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:             settings.JWTSecret,
					AllowLegacyUserHeader: settings.AllowLegacyUserHeader,
					AllowDevLogin:         settings.AllowDevLogin,
					TokenTTL:              settings.TokenTTL,
					Logger:                logger,
				},
			})
			if err != nil {
				return err
			}
			if settings.JWTSecret == "" {
				logger.Printf("DECYLO_JWT_SECRET not set; bearer tokens will be rejected")
			}
			srv := &http.Server{Addr: settings.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			fmt.Printf("Serving Decylo API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n",
				settings.Addr, settings.BasePath, settings.BasePath, settings.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newLogger() *log.Logger {
	return log.New(os.Stderr, "decylo: ", log.LstdFlags)
}

// withEngine opens the workspace journal and resolves the acting user.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	conn, cfg, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn, cfg)
	e.Logger = newLogger()
	userID, err := app.ResolveUser(ctx, e, viper.GetString("user-id"))
	if err != nil {
		return err
	}
	return fn(ctx, e, userID)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOr[T any](p *T, empty string) string {
	if p == nil {
		return empty
	}
	return fmt.Sprint(*p)
}
