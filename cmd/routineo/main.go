package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/cli/account"
	"github.com/julianstephens/routineo/internal/cli/routine"
	"github.com/julianstephens/routineo/internal/cli/settings"
	"github.com/julianstephens/routineo/internal/cli/system"
	"github.com/julianstephens/routineo/internal/config"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/keyring"
	"github.com/julianstephens/routineo/internal/logger"
)

var CLI struct {
	Version    kong.VersionFlag
	Config     string `help:"SQLite path or PostgreSQL connection string. For PostgreSQL, credentials must NOT be embedded in the connection string. Use environment variables, .pgpass, or the OS keyring instead." type:"string"`
	ConfigFile string `help:"YAML file with defaults for these flags." name:"config-file" type:"path"`
	Debug      bool   `help:"Log debug output to stderr."`
	LocalStore string `help:"Device-local storage backend: auto, keyring or file." name:"local-store"`

	Tui      system.TuiCmd      `cmd:"" help:"Launch the interactive checklist." default:"1"`
	Init     system.InitCmd     `cmd:"" help:"Initialize routineo storage."`
	Migrate  system.MigrateCmd  `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
	Validate system.ValidateCmd `cmd:"" help:"Check stored items for conflicts."`
	DebugCmd system.DebugCmd    `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
	Keyring  system.KeyringCmd  `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`

	Signup account.SignupCmd `cmd:"" help:"Create an account and sign in."`
	Login  account.LoginCmd  `cmd:"" help:"Sign in on this device."`
	Logout account.LogoutCmd `cmd:"" help:"Sign out on this device."`
	Whoami account.WhoamiCmd `cmd:"" help:"Show the signed-in account."`

	Today   routine.TodayCmd   `cmd:"" help:"Show today's checklist."`
	List    routine.ListCmd    `cmd:"" help:"List routine items."`
	Add     routine.AddCmd     `cmd:"" help:"Add a routine item."`
	Edit    routine.EditCmd    `cmd:"" help:"Edit a routine item."`
	Delete  routine.DeleteCmd  `cmd:"" help:"Delete a routine item."`
	Check   routine.CheckCmd   `cmd:"" help:"Check off an item."`
	Uncheck routine.UncheckCmd `cmd:"" help:"Clear an item's check."`
	Reorder routine.ReorderCmd `cmd:"" help:"Reorder the items of one day and part of day."`

	Settings settings.SettingsCmd `cmd:"" help:"Manage account settings."`
	Reset    settings.ResetCmd    `cmd:"" help:"Run or inspect the daily reset."`
}

// commands that open the store themselves
var selfLoading = map[string]bool{
	"init":    true,
	"migrate": true,
	"doctor":  true,
	"keyring": true,
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Daily routine checklist"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	configFile := CLI.ConfigFile
	if configFile == "" {
		configFile = config.DefaultPath()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		apperrors.Fatal(err)
	}
	if CLI.LocalStore != "" {
		cfg.LocalStore = CLI.LocalStore
		if err := cfg.Validate(); err != nil {
			apperrors.Fatal(err)
		}
	}
	configDir := filepath.Dir(configFile)

	if err := logger.Init(logger.Config{Debug: CLI.Debug || cfg.Debug, ConfigDir: configDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}

	dsn, err := resolveDSN(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, apperrors.Format(err))
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		apperrors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := &cli.Context{
		Ctx:       ctx,
		Config:    cfg,
		ConfigDir: configDir,
		Location:  loc,
	}
	appCtx.Store = appCtx.OpenStore(dsn)
	defer func() {
		if appCtx.Store != nil {
			appCtx.Store.Close()
		}
	}()

	command := ""
	if kctx.Selected() != nil {
		command = kctx.Selected().Name
		if parent := kctx.Selected().Parent; parent != nil && parent.Name == "keyring" {
			command = "keyring"
		}
	}
	if !selfLoading[command] {
		if err := appCtx.Store.Load(); err != nil {
			fmt.Fprintln(os.Stderr, apperrors.Format(err))
			os.Exit(1)
		}
	}

	logger.Debug("Running command", "command", command, "store", appCtx.Store.Path(), "dialect", appCtx.Store.Dialect())
	if err := kctx.Run(appCtx); err != nil {
		logger.Error("Command failed", "command", command, "error", err)
		fmt.Fprintln(os.Stderr, apperrors.Format(err))
		appCtx.Store.Close()
		os.Exit(1)
	}
}

// resolveDSN picks the store location: --config, then a connection string
// saved in the OS keyring, then the config file.
func resolveDSN(cfg *config.Config) (string, error) {
	if CLI.Config != "" {
		if docstore.DetectDialect(CLI.Config) == docstore.DialectPostgres {
			if _, err := docstore.ValidateConnString(CLI.Config); err != nil {
				if errors.Is(err, docstore.ErrEmbeddedCredentials) {
					return "", fmt.Errorf("PostgreSQL connection strings with embedded credentials are NOT allowed; store it with '%s keyring set' or use PGPASSWORD / .pgpass", constants.AppName)
				}
				return "", err
			}
		}
		return CLI.Config, nil
	}

	if connStr, err := keyring.GetConnectionString(); err == nil && connStr != "" {
		logger.Debug("Using connection string from OS keyring")
		return connStr, nil
	}
	return cfg.Database, nil
}
