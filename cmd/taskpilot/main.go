package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskpilot/internal/assign"
	"taskpilot/internal/config"
	"taskpilot/internal/db"
	"taskpilot/internal/domain"
	"taskpilot/internal/engine"
	"taskpilot/internal/events"
	"taskpilot/internal/migrate"
	"taskpilot/internal/recommend"
	"taskpilot/internal/repo"
	"taskpilot/internal/scheduler"
	"taskpilot/internal/server"
	"taskpilot/internal/session"
	"taskpilot/internal/telegram"
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "TaskPilot team task bot",
	Long: `TaskPilot runs a Telegram bot that onboards teams into shared projects,
creates tasks with recommender-assisted assignment, and reminds assignees
about upcoming deadlines. The CLI also offers read-only inspection of the
local database and an optional ops HTTP API.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(logCmd())
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(viper.GetString("log-level")); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// runCmd is the main entry point: bot long-polling plus the deadline
// scheduler, and the ops API when configured.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot and the deadline scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cfg.Database.Workspace != "" {
				workspace = cfg.Database.Workspace
			}
			log := newLogger()

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			r := repo.Repo{DB: conn}
			ew := events.Writer{DB: conn}
			rec := &recommend.HTTPClient{BaseURL: cfg.Recommender.URL, Timeout: cfg.Recommender.Timeout.Std()}
			resolver := assign.New(r, rec, log)
			eng := engine.New(r, session.NewStore(), resolver, ew, log)

			bot, err := telegram.New(cfg.Telegram.Token, eng, log)
			if err != nil {
				return err
			}

			sched := scheduler.New(r, bot, log)
			sched.Interval = cfg.Scheduler.Interval.Std()
			sched.Window = cfg.Scheduler.Window.Std()
			sched.EscalationThreshold = cfg.Scheduler.EscalationThreshold.Std()
			if cfg.Scheduler.Dedup {
				sched.Dedup = scheduler.NewDeduper()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 3)
			go func() { errCh <- sched.Run(ctx) }()
			go func() { errCh <- bot.Run(ctx) }()
			if cfg.Server.Addr != "" {
				handler, err := server.New(server.Config{
					Repo:   r,
					Events: ew,
					Auth:   server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}()
				log.WithField("addr", cfg.Server.Addr).Info("ops API listening")
			}

			log.Info("taskpilot running")
			err = <-errCh
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("log-level", "info", "log level")
	_ = viper.BindPFlag("log-level", cmd.Flags().Lookup("log-level"))
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ops HTTP API only",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("TASKPILOT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("TASKPILOT_JWT_SECRET is required for bearer auth")
			}
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Repo:     repo.Repo{DB: conn},
				Events:   events.Writer{DB: conn},
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving TaskPilot ops API on http://%s%s\n", addr, basePath)
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

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied:", db.Path(viper.GetString("workspace")))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	var token string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskpilot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(token)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&token, "token", "", "telegram bot token")
	_ = initCmd.MarkFlagRequired("token")
	cfg.AddCommand(initCmd)

	cfg.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate taskpilot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "CODE", "MANAGER", "CREATED")
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.Name, p.Code, p.ManagerID, p.CreatedAt})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	})

	var projectID int64
	members := &cobra.Command{
		Use:   "members",
		Short: "List a project's members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ProjectMemberships(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "TELEGRAM", "NAME", "ROLE", "ACTIVE")
				for _, m := range items {
					t.AppendRow(table.Row{m.ID, m.TelegramID, m.DisplayName, m.Role, m.Active})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	members.Flags().Int64Var(&projectID, "project", 0, "project id")
	_ = members.MarkFlagRequired("project")
	prj.AddCommand(members)

	var reportID int64
	report := &cobra.Command{
		Use:   "report",
		Short: "Per-member task status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.StatusReport(ctx, reportID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				t := newTable("MEMBER", "ROLE", "STATUS", "COUNT")
				for _, row := range rows {
					t.AppendRow(table.Row{row.MemberName, row.Role, row.Status, row.Count})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	report.Flags().Int64Var(&reportID, "project", 0, "project id")
	_ = report.MarkFlagRequired("project")
	prj.AddCommand(report)
	return prj
}

func taskCmd() *cobra.Command {
	tasks := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	var projectID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a project's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ProjectTasks(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "DESCRIPTION", "DEADLINE", "ASSIGNEE", "STATUS")
				for _, task := range items {
					t.AppendRow(table.Row{task.ID, task.Description, task.Deadline, task.AssignedTo, task.Status})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	list.Flags().Int64Var(&projectID, "project", 0, "project id")
	_ = list.MarkFlagRequired("project")
	tasks.AddCommand(list)

	var windowHours int
	due := &cobra.Command{
		Use:   "due",
		Short: "Tasks coming due within a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now()
				items, err := r.TasksDueBetween(ctx, now, now.Add(time.Duration(windowHours)*time.Hour), domain.TaskStatusCompleted)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "PROJECT", "DESCRIPTION", "DEADLINE", "ASSIGNEE")
				for _, d := range items {
					t.AppendRow(table.Row{d.Task.ID, d.ProjectName, d.Task.Description, d.Task.Deadline, d.AssigneeName})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	due.Flags().IntVar(&windowHours, "window-hours", 24, "lookahead window in hours")
	tasks.AddCommand(due)
	return tasks
}

func feedbackCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Show latest bot feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBotFeedback(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("WHEN", "USER", "MESSAGE")
				for _, f := range items {
					t.AppendRow(table.Row{f.CreatedAt, f.TelegramID, f.Message})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			ew := events.Writer{DB: conn}
			items, err := ew.Latest(cmd.Context(), n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			t := newTable("TS", "TYPE", "PROJECT", "ENTITY", "ACTOR")
			for _, e := range items {
				t.AppendRow(table.Row{e.TS, e.Type, e.ProjectID, e.EntityKind + "/" + e.EntityID, e.ActorID})
			}
			fmt.Println(t.Render())
			return nil
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	log.AddCommand(tail)
	return log
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(headers))
	return t
}
