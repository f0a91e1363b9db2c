package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/m3rciful/surveybot/core/buildinfo"
	corecmd "github.com/m3rciful/surveybot/core/cmd"
	coredatabase "github.com/m3rciful/surveybot/core/database"
	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/internal/allowlist"
	"github.com/m3rciful/surveybot/internal/app"
)

const configEnv = "CONFIG_PATH"

type rootFlags struct {
	config string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "surveybot",
		Short:         "Telegram front-end for survey mailings and data uploads",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "path to the YAML config (default $"+configEnv+", then config.yaml)")

	root.AddCommand(
		newRunCmd(flags),
		newMigrateCmd(flags),
		newAllowCmd(flags),
		newRevokeCmd(flags),
		newUsersCmd(flags),
	)
	return root
}

func (f *rootFlags) path() (string, error) {
	return corecmd.ResolveConfigPath(f.config, configEnv, "config.yaml")
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				Context:           cmd.Context(),
				ConfigPath:        flags.config,
				ConfigEnvVar:      configEnv,
				DefaultConfigPath: "config.yaml",
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return app.Load(path)
				},
				Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					return app.Bootstrap(cfg.(*app.Config))
				},
			})
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadStorage(flags)
			if err != nil {
				return err
			}
			defer logger.Shutdown()
			return coredatabase.RunMigrations(cfg.Database)
		},
	}
}

// withStore opens the allow-list store for a maintenance command.
func withStore(flags *rootFlags, fn func(ctx context.Context, store *allowlist.Store) error) error {
	cfg, err := loadStorage(flags)
	if err != nil {
		return err
	}
	defer logger.Shutdown()

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), allowlist.NewStore(db))
}

func loadStorage(flags *rootFlags) (*app.Config, error) {
	path, err := flags.path()
	if err != nil {
		return nil, err
	}
	cfg, err := app.LoadStorage(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", s)
	}
	return id, nil
}

func newAllowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "allow <chat_id> <email>",
		Short: "Grant a chat access to the bot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			return withStore(flags, func(ctx context.Context, store *allowlist.Store) error {
				if err := store.Allow(ctx, chatID, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "allowed %d (%s)\n", chatID, args[1])
				return nil
			})
		},
	}
}

func newRevokeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <chat_id>",
		Short: "Revoke a chat's access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			return withStore(flags, func(ctx context.Context, store *allowlist.Store) error {
				if err := store.Revoke(ctx, chatID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %d\n", chatID)
				return nil
			})
		},
	}
}

func newUsersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the allow-list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(flags, func(ctx context.Context, store *allowlist.Store) error {
				entries, err := store.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CHAT_ID\tEMAIL\tALLOWED\tUPDATED")
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", e.ChatID, e.Email, e.Allowed, e.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}
