package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/export"
	"venuebook/internal/google"
	"venuebook/internal/identity"
	"venuebook/internal/logging"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const usage = `usage: venuectl [--config path] <command> [flags]

commands:
  import        load a realtime database JSON export
  token         mint an API bearer token
  role          set the role of a user
  retry-failed  requeue failed sync tasks
  sync-sheets   rewrite the spreadsheet mirror from the database
  export        write bookings to an XLSX file under exports.path
  backup        write a database backup now
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	global := pflag.NewFlagSet("venuectl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "path to config.yaml (defaults to $CONFIG_PATH or configs/config.yaml)")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, logger, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return handler(ctx, &env{cfg: cfg, logger: &logger, out: out}, rest)
}

type env struct {
	cfg    *config.Config
	logger *zerolog.Logger
	out    io.Writer
}

func (e *env) openDB() (*database.DB, error) {
	db, err := database.NewDB(e.cfg.Database.Path, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"import":       runImport,
	"token":        runToken,
	"role":         runRole,
	"retry-failed": runRetryFailed,
	"sync-sheets":  runSyncSheets,
	"backup":       runBackup,
	"export":       runExport,
}

func loadConfigAndLogger(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger.With().Str("component", "venuectl").Logger(), closer, nil
}

func runImport(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	file := fs.StringP("file", "f", "", "realtime database JSON export")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *file == "" {
		return fmt.Errorf("%w: --file is required", errUsage)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse export: %w", err)
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.ImportSnapshot(ctx, &snap)
	if err != nil {
		return err
	}
	e.logger.Info().
		Int("bookings", stats.Bookings).
		Int("notifications", stats.Notifications).
		Int("users", stats.Users).
		Msg("import finished")
	fmt.Fprintf(e.out, "imported %d bookings, %d notifications, %d users\n", stats.Bookings, stats.Notifications, stats.Users)
	return nil
}

func runToken(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	uid := fs.String("uid", "", "user id (sub claim)")
	email := fs.String("email", "", "user email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", models.RoleUser, "role claim (admin|user)")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to api.auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *uid == "" {
		return fmt.Errorf("%w: --uid is required", errUsage)
	}
	if !models.IsValidRole(*role) {
		return fmt.Errorf("%w: unknown role %q", errUsage, *role)
	}

	auth := e.cfg.API.Auth
	lifetime := auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := identity.NewTokenIssuer(auth.JWTSecret, auth.Issuer, auth.Audience, lifetime).Issue(identity.Principal{
		UserID: *uid,
		Email:  *email,
		Name:   *name,
		Role:   *role,
	})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(e.out, token)
	return nil
}

func runRole(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("role", pflag.ContinueOnError)
	uid := fs.String("uid", "", "user id")
	email := fs.String("email", "", "email stored when the user does not exist yet")
	role := fs.String("role", "", "new role (admin|user)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *uid == "" || !models.IsValidRole(*role) {
		return fmt.Errorf("%w: --uid and a valid --role are required", errUsage)
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.SetUserRole(ctx, *uid, *role)
	if errors.Is(err, database.ErrNotFound) {
		err = db.UpsertUser(ctx, &models.User{ID: *uid, Email: *email, Role: *role, CreatedAt: time.Now().UTC()})
	}
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	fmt.Fprintf(e.out, "%s is now %s\n", *uid, *role)
	return nil
}

func runRetryFailed(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("retry-failed", pflag.ContinueOnError)
	list := fs.Bool("list", false, "only list failed tasks")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if *list {
		tasks, err := db.GetFailedSyncTasks(ctx)
		if err != nil {
			return err
		}
		for i := range tasks {
			lastError := ""
			if tasks[i].LastError != nil {
				lastError = *tasks[i].LastError
			}
			fmt.Fprintf(e.out, "%d\t%s\t%s\t%d\t%s\n", tasks[i].ID, tasks[i].TaskType, tasks[i].BookingID, tasks[i].RetryCount, lastError)
		}
		return nil
	}

	n, err := db.RetryFailedSyncTasks(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "requeued %d tasks\n", n)
	return nil
}

func runSyncSheets(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("sync-sheets", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !e.cfg.Google.Enabled() {
		return errors.New("google sheets is not configured")
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	bookings, err := db.ListBookings(ctx)
	if err != nil {
		return err
	}

	g := e.cfg.Google
	sheets, err := google.NewSheetsService(ctx, g.CredentialsFile, g.BookingSpreadSheetID, g.SheetName, e.logger)
	if err != nil {
		return err
	}
	if err := sheets.ReplaceBookings(ctx, bookings); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "mirrored %d bookings\n", len(bookings))
	return nil
}

func runBackup(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("backup", pflag.ContinueOnError)
	prune := fs.Bool("prune", true, "remove backups older than backup.retention_days")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	backups := database.NewBackupService(db, e.cfg.Backup, e.logger)
	path, err := backups.PerformBackup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, path)
	if *prune {
		if removed := backups.CleanupOldBackups(); removed > 0 {
			fmt.Fprintf(e.out, "removed %d old backups\n", removed)
		}
	}
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	status := fs.String("status", booking.StatusAll, "status filter (all|pending|approved|rejected)")
	search := fs.String("search", "", "search term over facility, requester and purpose")
	dir := fs.String("dir", "", "output directory (defaults to exports.path)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	filterStatus, ok := booking.ParseStatusFilter(*status)
	if !ok {
		return fmt.Errorf("%w: unknown status %q", errUsage, *status)
	}
	if *dir == "" {
		*dir = e.cfg.Exports.Path
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	all, err := db.ListBookings(ctx)
	if err != nil {
		return err
	}
	bookings := booking.ApplyFilter(all, booking.Filter{Status: filterStatus, Search: *search}, booking.MatchesAdminSearch)
	booking.SortByCreatedDesc(bookings)

	path, err := export.SaveBookings(*dir, bookings, time.Now())
	if err != nil {
		return err
	}

	counts := booking.CountByStatus(bookings)
	e.logger.Info().Str("path", path).Int("rows", len(bookings)).Msg("bookings exported")
	fmt.Fprintf(e.out, "%s\n%d pending, %d approved, %d rejected\n", path,
		counts[models.StatusPending], counts[models.StatusApproved], counts[models.StatusRejected])
	return nil
}
