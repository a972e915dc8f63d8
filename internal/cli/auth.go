package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <credential>",
		Short: "Store a bearer credential and merge the guest cart into it",
		Long: `Store a bearer credential and merge the guest cart into it.

The guest cart is merged the first time the session is seen authenticated;
the merged cart is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			credential := strings.TrimSpace(args[0])
			if credential == "" {
				return NewExitError(ExitCommandError, "credential must not be empty")
			}
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				if err := s.tokens.SetCredential(ctx, credential); err != nil {
					return WrapExitError(ExitCommandError, "store credential", err)
				}
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.engine.Reload(ctx))
			})
		},
	}
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential; later commands use the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				if err := s.tokens.Logout(ctx); err != nil {
					return WrapExitError(ExitCommandError, "forget credential", err)
				}
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Message("status", "logged out")
			})
		},
	}
}

// NewGuestTokenCommand creates the guest-token command.
func NewGuestTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guest-token",
		Short: "Print the persisted guest token, creating it on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				token, err := s.resolver.GuestToken(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "guest token", err)
				}
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Message("guest_token", token)
			})
		},
	}
}
