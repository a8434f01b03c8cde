// Command admin provisions dashboard accounts and fetches archived exports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dtroode/membership-server/internal/config"
	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/repository/memory"
	"github.com/dtroode/membership-server/internal/repository/postgres"
	"github.com/dtroode/membership-server/internal/service"
	storage "github.com/dtroode/membership-server/internal/storage/minio"
	"github.com/dtroode/membership-server/internal/token"
)

// accountAdmin manages dashboard accounts.
type accountAdmin interface {
	CreateAccount(ctx context.Context, email, password string, role model.Role) (model.Account, error)
	Grant(ctx context.Context, email string, role model.Role) (model.Account, error)
}

// deps opens backends on demand so commands only need the configuration they use.
type deps struct {
	openAccounts func(ctx context.Context) (accountAdmin, func(), error)
	openArchive  func(ctx context.Context) (model.Storage, error)
	readPassword func(fd int) ([]byte, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithWriter(os.Stderr, int(slog.LevelWarn), "text")

	root := newRootCmd(deps{
		openAccounts: func(ctx context.Context) (accountAdmin, func(), error) {
			if cfg.Database.DSN == "" {
				return nil, nil, errors.New("DATABASE_DSN is required to manage accounts")
			}
			db, err := postgres.NewConnection(ctx, cfg.Database.DSN, postgres.PoolOptions{
				MaxConns:        cfg.Database.MaxConns,
				MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			})
			if err != nil {
				return nil, nil, err
			}
			auth := service.NewAuth(
				postgres.NewAccountRepository(db),
				token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL),
				memory.NewRevocationList(),
				log,
				nil,
			)
			return auth, func() { _ = db.Close() }, nil
		},
		openArchive: func(ctx context.Context) (model.Storage, error) {
			if cfg.Storage.Endpoint == "" {
				return nil, errors.New("MINIO_ENDPOINT is required to read archived exports")
			}
			return storage.New(ctx, storage.Config{
				Endpoint:  cfg.Storage.Endpoint,
				AccessKey: cfg.Storage.AccessKey,
				SecretKey: cfg.Storage.SecretKey,
				Bucket:    cfg.Storage.Bucket,
				UseSSL:    cfg.Storage.UseSSL,
			})
		},
		readPassword: term.ReadPassword,
	})

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "membership-admin",
		Short:         "Manage dashboard accounts and archived exports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newAddCmd(d),
		newGrantCmd(d),
		newRevokeCmd(d),
		newExportCmd(d),
	)
	return root
}

func newAddCmd(d deps) *cobra.Command {
	var roleName string

	cmd := &cobra.Command{
		Use:   "add EMAIL",
		Short: "Create an account, the password is prompted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(roleName)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
			pwd, err := d.readPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if len(pwd) == 0 {
				return errors.New("password must not be empty")
			}

			accounts, closeFn, err := d.openAccounts(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			account, err := accounts.CreateAccount(cmd.Context(), args[0], string(pwd), role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s created (uid %s, role %s)\n", account.Email, account.ID, roleLabel(account.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&roleName, "role", "admin", `account role: "admin" or "none"`)
	return cmd
}

func newGrantCmd(d deps) *cobra.Command {
	var roleName string

	cmd := &cobra.Command{
		Use:   "grant EMAIL",
		Short: "Set the role of an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(roleName)
			if err != nil {
				return err
			}
			return setRole(cmd, d, args[0], role)
		},
	}
	cmd.Flags().StringVar(&roleName, "role", "admin", `account role: "admin" or "none"`)
	return cmd
}

func newRevokeCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke EMAIL",
		Short: "Remove dashboard access from an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRole(cmd, d, args[0], model.RoleNone)
		},
	}
}

func setRole(cmd *cobra.Command, d deps, email string, role model.Role) error {
	accounts, closeFn, err := d.openAccounts(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	account, err := accounts.Grant(cmd.Context(), email, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %s now has role %s\n", account.Email, roleLabel(account.Role))
	return nil
}

func newExportCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Work with archived exports",
	}

	var out string
	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Download an archived export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := d.openArchive(ctx)
			if err != nil {
				return err
			}

			ok, err := archive.Exists(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("export %s not found", args[0])
			}

			r, err := archive.Download(ctx, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if _, err := io.Copy(w, r); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			return nil
		},
	}
	get.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")

	cmd.AddCommand(get)
	return cmd
}

func parseRole(name string) (model.Role, error) {
	switch name {
	case "admin":
		return model.RoleAdmin, nil
	case "none":
		return model.RoleNone, nil
	default:
		return "", fmt.Errorf("unknown role %q", name)
	}
}

func roleLabel(role model.Role) string {
	if role == model.RoleNone {
		return "none"
	}
	return string(role)
}
