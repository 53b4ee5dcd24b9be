// Package cli implements userctl, an operator CLI that drives the user
// service directly against the configured database.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/changeuikim/vercel-kayce/internal/app"
	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/platform/config"
	"github.com/changeuikim/vercel-kayce/internal/platform/logger"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
)

// Users is the part of the user service the commands call.
type Users interface {
	Create(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error)
	FindByIdentity(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error)
	SoftDelete(ctx context.Context, userID id.UserID) (*models.User, error)
	Restore(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByID(ctx context.Context, userID id.UserID, includeDeleted bool) (*models.User, error)
	FetchPage(ctx context.Context, req service.SearchRequest) (query.Page[*models.User], error)
}

// Opener builds the service for one command invocation. The returned func
// releases it.
type Opener func(ctx context.Context, opts *RootOptions) (Users, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"yaml", "json"}

// NewRootCommand creates userctl wired to the configured database.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openApp)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "userctl",
		Short: "Manage social-login users",
		Long: `userctl creates, inspects, soft-deletes and restores users, and pages
through them with the same filter, sort and cursor rules as the HTTP API.

Configuration comes from the environment, optionally overlaid by --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVarP(&opts.Format, "output", "o", "yaml", "output format (yaml|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log service activity to stderr")

	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newLookupCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	cmd.AddCommand(newListCommand(opts))

	return cmd
}

func openApp(ctx context.Context, opts *RootOptions) (Users, func(), error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		log = logger.New(cfg.Log.Format, "debug")
	}
	a, err := app.New(ctx, &cfg, log, nil)
	if err != nil {
		return nil, nil, err
	}
	return a.Users, a.Close, nil
}

// withUsers opens the service, runs fn and prints its result.
func withUsers(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, users Users) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	users, release, err := opts.open(ctx, opts)
	if err != nil {
		return err
	}
	defer release()

	result, err := fn(ctx, users)
	if err != nil {
		return err
	}
	return write(cmd.OutOrStdout(), opts.Format, result)
}
