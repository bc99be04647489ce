package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and27/pcengine/internal/app"
	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/db"
	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
	"github.com/and27/pcengine/internal/logging"
	"github.com/and27/pcengine/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pce",
	Short: "Project commitment engine",
	Long: `pce keeps a small number of projects active at once.
- Projects are active, frozen or archived. At most active_cap (default 3) are active.
- Freezing or finishing a project records a snapshot of where it stands.
- An override launches a frozen project by freezing an active one, with a recorded reason.
- Drafts are GitHub repositories imported as candidates; converting one creates a frozen project.
- Every change is written to an event log, view it with 'pce log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig loads <workspace>/.env without overriding variables already
// set, then exposes PCENGINE_* variables through viper.
func initConfig() {
	viper.SetEnvPrefix("PCENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: load .env:", err)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("db-driver", "", "database driver (sqlite or postgres)")
	flags.String("db-dsn", "", "database DSN")
	flags.String("log-level", "warn", "log level")
	flags.Bool("json", false, "output JSON")
	flags.String("actor", "local-user", "actor identifier recorded on events")
	flags.String("jwt-secret", "", "HS256 secret for bearer tokens")
	flags.String("github-client-secret", "", "GitHub OAuth client secret")
	for _, name := range []string{"workspace", "db-driver", "db-dsn", "log-level", "json", "actor", "jwt-secret", "github-client-secret"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create pcengine.yml and the database in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("Wrote", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Workspace ready (%s, active cap %d)\n", a.Dialect, a.Engine.ActiveCap())
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := tailEvents(ctx, e, projectID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ProjectID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "only events for this project")
	return cmd
}

// tailEvents pages through the log and keeps the last n events.
func tailEvents(ctx context.Context, e engine.Engine, projectID string, n int) ([]domain.Event, error) {
	const page = 500
	var out []domain.Event
	var cursor int64
	for {
		batch, err := e.ListEvents(ctx, projectID, cursor, page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(out) > n {
			out = out[len(out)-n:]
		}
		if len(batch) < page {
			return out, nil
		}
		cursor = batch[len(batch)-1].ID
	}
}

func tokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := jwtSecret()
			if err != nil {
				return err
			}
			if strings.TrimSpace(userID) == "" {
				userID = viper.GetString("actor")
			}
			token, err := server.IssueToken(secret, userID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to --actor)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("github-client-secret"); secret != "" {
		cfg.GitHub.ClientSecret = secret
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	return cfg, nil
}

func jwtSecret() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Server.JWTSecret) == "" {
		return "", fmt.Errorf("jwt secret required (--jwt-secret or PCENGINE_JWT_SECRET)")
	}
	return cfg.Server.JWTSecret, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger, err := logging.New(logging.Config{Level: viper.GetString("log-level"), Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.OpenWithConfig(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Driver:    viper.GetString("db-driver"),
		DSN:       viper.GetString("db-dsn"),
		Logger:    logger,
	}, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func actor() string {
	return viper.GetString("actor")
}

func currentUser() domain.UserContext {
	return domain.UserContext{UserID: actor()}
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
