package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homico/internal/app"
	"homico/internal/config"
	"homico/internal/db"
	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/server"
	"homico/internal/sweep"
)

var rootCmd = &cobra.Command{
	Use:   "homico",
	Short: "homico hiring and project tracking",
	Long: `homico runs the hiring and project-lifecycle core of a services marketplace.
- Jobs: clients post marketplace jobs (open to proposals) or direct requests (sent to invited professionals).
- Proposals: verified professionals bid; clients shortlist, accept, reject or revert them.
- Direct requests: the first invited professional to accept is hired, everyone else is told the job is taken.
- Tracking: hired projects move hired -> started -> in_progress -> review -> completed; the client confirms completion.
- Sweep: open jobs past their expiry become expired (scheduled in serve, or 'homico sweep run').
- Workspace: the .homico directory holds the database; homico.yml holds the config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HOMICO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("user-id", "", "acting user id")
	flags.String("log-format", "text", "log format (text|json)")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	for _, name := range []string{"workspace", "json", "user-id", "log-format", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(directCmd())
	rootCmd.AddCommand(trackingCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(proCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default homico.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect config",
		Long:  "Config lives in homico.yml: job TTL, bidding categories, sweep schedule, outbound services and webhooks.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate homico.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath, jwtSecret string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the /v1 API, runs side effects on the outbound worker pool, schedules the expiration sweep and forwards events to webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jwtSecret == "" {
				jwtSecret = viper.GetString("jwt-secret")
			}
			if jwtSecret == "" {
				return fmt.Errorf("HOMICO_JWT_SECRET is required for bearer auth")
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: logger, Async: true})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := rt.Close(shutdownCtx); err != nil {
					logger.Error("shutdown", "error", err)
				}
			}()

			sched := sweep.New(rt.Engine, logger.With("component", "sweep"))
			if rt.Config.Sweep.Enabled {
				if err := sched.Start(rt.Config.Sweep.Schedule); err != nil {
					return err
				}
				defer sched.Stop()
			}
			server.StartWebhookDispatcher(ctx, rt.Engine, logger)

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: jwtSecret},
				Sweep:    sched,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving homico API", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "HS256 secret for bearer tokens (env HOMICO_JWT_SECRET)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var role, secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = viper.GetString("jwt-secret")
			}
			userID, err := requireUser()
			if err != nil {
				return err
			}
			token, err := server.SignToken(secret, userID, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "client", "role claim (client|pro|admin)")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "HS256 secret (env HOMICO_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}

func sweepCmd() *cobra.Command {
	sw := &cobra.Command{Use: "sweep", Short: "Expiration sweep"}
	sw.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Expire open jobs past their expiry now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res := sweep.New(e, e.Logger).RunOnce(ctx)
				if res.Error != "" {
					return errors.New(res.Error)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("expired %d job(s) in %s\n", res.Expired, res.Duration)
				return nil
			})
		},
	})
	return sw
}

func proCmd() *cobra.Command {
	pro := &cobra.Command{Use: "pro", Short: "Professional trust status"}
	var status string
	verify := &cobra.Command{
		Use:   "verify <pro-id>",
		Short: "Set a professional's verification status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("user-id")
				if err := e.SetProVerification(ctx, args[0], status, actor); err != nil {
					return err
				}
				fmt.Printf("%s is %s\n", args[0], status)
				return nil
			})
		},
	}
	verify.Flags().StringVar(&status, "status", "verified", "verified|unverified|suspended")
	pro.AddCommand(verify)
	return pro
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var jobID, evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, jobID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Job", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.JobID, evt.ActorID})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&jobID, "job", "", "job id filter")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	lg.AddCommand(tail)
	return lg
}

func newLogger() (*slog.Logger, error) {
	return app.NewLogger(os.Stderr, viper.GetString("log-format"), viper.GetString("log-level"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())
	return fn(ctx, rt.Engine)
}

func requireUser() (string, error) {
	userID := strings.TrimSpace(viper.GetString("user-id"))
	if userID == "" {
		return "", fmt.Errorf("--user-id required")
	}
	return userID, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	switch x := v.(type) {
	case domain.Job:
		printJobs([]domain.Job{x})
	case []domain.Job:
		printJobs(x)
	case domain.Proposal:
		printProposals([]domain.Proposal{x})
	case []domain.Proposal:
		printProposals(x)
	case domain.ProjectTracking:
		printTracking(x)
	default:
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobs(items []domain.Job) {
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "ID", "Title", "Type", "Status", "Hired", "Proposals", "Expires"})
	for _, j := range items {
		tw.AppendRow(table.Row{j.DisplayNumber, j.ID, j.Title, j.JobType, j.Status, stringOrEmpty(j.HiredProID), j.ProposalCount, j.ExpiresAt})
	}
	fmt.Println(tw.Render())
}

func printProposals(items []domain.Proposal) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Pro", "Price", "Duration", "Status", "Choice"})
	for _, p := range items {
		choice := ""
		if p.HiringChoice != nil {
			choice = string(*p.HiringChoice)
		}
		tw.AppendRow(table.Row{p.ID, p.ProID, p.ProposedPrice, fmt.Sprintf("%d %s", p.EstimatedDuration, p.EstimatedDurationUnit), p.Status, choice})
	}
	fmt.Println(tw.Render())
}

func printTracking(t domain.ProjectTracking) {
	fmt.Printf("Job %s: %s (%d%%)\n", t.JobID, t.CurrentStage.Label(), t.Progress)
	fmt.Printf("Client %s, professional %s\n", t.ClientID, t.ProID)
	if t.ClientConfirmedAt != nil {
		fmt.Printf("Confirmed at %s\n", *t.ClientConfirmedAt)
	} else if t.CompletedAt != nil {
		fmt.Printf("Completed at %s, awaiting client confirmation\n", *t.CompletedAt)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Stage", "Entered", "Exited", "By", "Note"})
	for _, s := range t.StageHistory {
		tw.AppendRow(table.Row{s.Stage, s.EnteredAt, stringOrEmpty(s.ExitedAt), s.ChangedBy, s.Note})
	}
	fmt.Println(tw.Render())
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
