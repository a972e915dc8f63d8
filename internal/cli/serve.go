package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-cart-sync/internal/cartserver"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
	"github.com/c0deZ3R0/go-cart-sync/storage/postgres"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	JWTSecret   string
	PostgresDSN string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory reference cart server",
		Long: `Run the in-memory reference cart server.

Without --jwt-secret any bearer credential is accepted and used as the user
id. With it, credentials must be HS256 JWTs whose subject is the user id.
The secret may also come from CART_JWT_SECRET.

With --postgres-dsn (or CART_SERVER_POSTGRES_DSN) logouts are relayed to
every instance sharing the database through LISTEN/NOTIFY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var auth cartserver.Authenticator = cartserver.OpaqueTokens{}
			secret := opts.JWTSecret
			if secret == "" {
				secret = os.Getenv("CART_JWT_SECRET")
			}
			if secret != "" {
				auth = cartserver.HMACTokens{Secret: []byte(secret)}
			}

			serverCfg := cartserver.Config{
				Addr:          opts.Addr,
				GuestHeader:   cfg.GuestHeader,
				Authenticator: auth,
				Logger:        logger.WithComponent(logging.Component("serve")),
			}

			dsn := opts.PostgresDSN
			if dsn == "" {
				dsn = os.Getenv("CART_SERVER_POSTGRES_DSN")
			}
			var relay *postgres.ResetRelay
			if dsn != "" {
				relay, err = postgres.NewResetRelay(dsn, logger)
				if err != nil {
					return WrapExitError(ExitCommandError, "connect reset relay", err)
				}
				defer relay.Close()
				serverCfg.Resets = relay
			}

			srv := cartserver.New(serverCfg)
			if relay != nil {
				relay.OnReset(func(user string) {
					srv.Broadcaster().Publish(user, signal.CartReset)
				})
				if err := relay.Start(cmd.Context()); err != nil {
					return WrapExitError(ExitCommandError, "start reset relay", err)
				}
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.JWTSecret, "jwt-secret", "", "HS256 secret for bearer credentials")
	cmd.Flags().StringVar(&opts.PostgresDSN, "postgres-dsn", "", "relay cart resets between instances through this database")

	return cmd
}
