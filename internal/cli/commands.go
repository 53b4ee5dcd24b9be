package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

type identityFlags struct {
	provider string
	identity string
}

func (f *identityFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "identity provider (github|google|kakao|naver)")
	cmd.Flags().StringVar(&f.identity, "identity", "", "provider-issued identifier")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("identity")
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user for a provider identity",
		Example: `  userctl create --provider github --identity 583231`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := identity.ParseProvider(flags.provider)
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				return users.Create(ctx, provider, flags.identity)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newLookupCommand(opts *RootOptions) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Find the active user holding a provider identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := identity.ParseProvider(flags.provider)
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				u, err := users.FindByIdentity(ctx, provider, flags.identity)
				if err != nil {
					return nil, err
				}
				if u == nil {
					return nil, dErrors.New(dErrors.CodeEntityNotFound, "no active user holds this identity")
				}
				return u, nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				return users.FindByID(ctx, userID, includeDeleted)
			})
		},
	}
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "also return soft-deleted users")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an active user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				return users.SoftDelete(ctx, userID)
			})
		},
	}
}

func newRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				return users.Restore(ctx, userID)
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	Filter         string
	Sort           []string
	Take           int
	Skip           int
	Cursor         string
	IncludeDeleted bool
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var flags ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through users",
		Long: `Page through users.

--filter takes a filter document in YAML or JSON, for example
  {isDeleted: true, deletedAt: {gte: 2024-01-01T00:00:00Z}}
--sort takes field:direction and may repeat; the default is createdAt:desc.`,
		Example: `  userctl list --take 20 --sort deletedAt:asc --filter '{"isDeleted": true}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			return withUsers(cmd, opts, func(ctx context.Context, users Users) (any, error) {
				return users.FetchPage(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&flags.Filter, "filter", "", "filter document (yaml or json)")
	cmd.Flags().StringSliceVar(&flags.Sort, "sort", nil, "sort key as field:direction")
	cmd.Flags().IntVar(&flags.Take, "take", 0, "page size (default 10)")
	cmd.Flags().IntVar(&flags.Skip, "skip", 0, "rows to skip after the cursor")
	cmd.Flags().StringVar(&flags.Cursor, "cursor", "", "id of the row the page starts after")
	cmd.Flags().BoolVar(&flags.IncludeDeleted, "include-deleted", false, "do not hide soft-deleted users")
	return cmd
}

func (f *ListOptions) request(cmd *cobra.Command) (service.SearchRequest, error) {
	req := service.SearchRequest{
		Pagination:     query.PageRequest{Skip: f.Skip, Cursor: f.Cursor},
		IncludeDeleted: f.IncludeDeleted,
	}
	if cmd.Flags().Changed("take") {
		take := f.Take
		req.Pagination.Take = &take
	}
	if f.Filter != "" {
		var filter query.Filter
		if err := yaml.Unmarshal([]byte(f.Filter), &filter); err != nil {
			return service.SearchRequest{}, dErrors.Wrap(err, dErrors.CodeValidation, "filter is not valid yaml or json")
		}
		req.Filter = &filter
	}
	for _, s := range f.Sort {
		field, dir, ok := strings.Cut(s, ":")
		if !ok {
			dir = string(query.Asc)
		}
		if field == "" {
			return service.SearchRequest{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid sort %q", s))
		}
		req.Sort = append(req.Sort, query.Sort{Field: query.Field(field), Direction: query.Direction(dir)})
	}
	return req, nil
}
