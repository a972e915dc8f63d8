package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Reload the cart from the server and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.start(ctx))
			})
		},
	}
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Title    string
	Price    string
	Quantity int
	Waste    string
	CO2      string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <bundle-id>",
		Short: "Add a bundle to the cart",
		Long: `Add a bundle to the cart.

The title and price are only shown until the server answers; the cart is
then reloaded with the server's figures.

Example:
  cartctl add 12 --qty 2 --price 9.90`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBundleID(args[0])
			if err != nil {
				return err
			}
			price, err := cart.ParseDecimal(opts.Price)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --price", err)
			}
			impact, err := parseImpact(opts.Waste, opts.CO2)
			if err != nil {
				return err
			}
			item := cart.Item{ID: id, Title: opts.Title, Price: price, Quantity: opts.Quantity}

			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				s.start(ctx)
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.engine.Add(ctx, item, impact))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "bundle title shown until the server answers")
	cmd.Flags().StringVar(&opts.Price, "price", "0", "unit price shown until the server answers")
	cmd.Flags().IntVarP(&opts.Quantity, "qty", "q", 1, "quantity to add")
	cmd.Flags().StringVar(&opts.Waste, "waste", "", "avoided waste in kg for the line")
	cmd.Flags().StringVar(&opts.CO2, "co2", "", "avoided CO2 in kg for the line")

	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	var waste, co2 string

	cmd := &cobra.Command{
		Use:   "set <bundle-id> <quantity>",
		Short: "Set the quantity of a bundle; values below 1 become 1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBundleID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid quantity", err)
			}
			impact, err := parseImpact(waste, co2)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				s.start(ctx)
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.engine.UpdateQuantity(ctx, id, qty, impact))
			})
		},
	}

	cmd.Flags().StringVar(&waste, "waste", "", "avoided waste in kg for the line")
	cmd.Flags().StringVar(&co2, "co2", "", "avoided CO2 in kg for the line")
	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <bundle-id>",
		Short: "Remove a bundle from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBundleID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				s.start(ctx)
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.engine.RemoveFromCart(ctx, id))
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				s.start(ctx)
				return NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()).Result(s.engine.ClearCart(ctx))
			})
		},
	}
}

func parseBundleID(s string) (cart.BundleID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid bundle id %q", s))
	}
	return cart.BundleID(id), nil
}

func parseImpact(waste, co2 string) (synckit.Impact, error) {
	var impact synckit.Impact
	if waste != "" {
		d, err := cart.ParseDecimal(waste)
		if err != nil {
			return impact, WrapExitError(ExitCommandError, "invalid --waste", err)
		}
		impact.AvoidedWasteKg = &d
	}
	if co2 != "" {
		d, err := cart.ParseDecimal(co2)
		if err != nil {
			return impact, WrapExitError(ExitCommandError, "invalid --co2", err)
		}
		impact.AvoidedCO2Kg = &d
	}
	return impact, nil
}
