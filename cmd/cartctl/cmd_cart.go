package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/cart"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

func init() {
	rootCmd.AddCommand(listCmd, addCmd, incCmd, decCmd)

	listCmd.Flags().Bool("json", false, "print cart as JSON")

	addCmd.Flags().String("title", "", "product title (required)")
	addCmd.Flags().String("image-url", "", "product image URL")
	addCmd.Flags().Float64("price", 0, "product price")
	_ = addCmd.MarkFlagRequired("title")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show cart line items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withCart(cmd, func(ctx context.Context, store *cart.Store) error {
			items, err := store.Products(ctx)
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return printCart(cmd.OutOrStdout(), items)
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a product to the cart (increments if already present)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		imageURL, _ := cmd.Flags().GetString("image-url")
		price, _ := cmd.Flags().GetFloat64("price")

		product := domain.Product{
			ID:       strings.TrimSpace(args[0]),
			Title:    title,
			ImageURL: imageURL,
			Price:    price,
		}
		return withCart(cmd, func(ctx context.Context, store *cart.Store) error {
			if err := store.AddToCart(ctx, product); err != nil {
				return fmt.Errorf("add to cart: %w", err)
			}
			return printAfterMutation(ctx, cmd.OutOrStdout(), store)
		})
	},
}

var incCmd = &cobra.Command{
	Use:   "inc <id>",
	Short: "Increase line item quantity by one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCart(cmd, func(ctx context.Context, store *cart.Store) error {
			if err := store.Increment(ctx, args[0]); err != nil {
				return fmt.Errorf("increment: %w", err)
			}
			return printAfterMutation(ctx, cmd.OutOrStdout(), store)
		})
	},
}

var decCmd = &cobra.Command{
	Use:   "dec <id>",
	Short: "Decrease line item quantity by one (never below zero)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCart(cmd, func(ctx context.Context, store *cart.Store) error {
			if err := store.Decrement(ctx, args[0]); err != nil {
				return fmt.Errorf("decrement: %w", err)
			}
			return printAfterMutation(ctx, cmd.OutOrStdout(), store)
		})
	},
}

// printAfterMutation дожидается записи снимка и печатает корзину.
func printAfterMutation(ctx context.Context, w io.Writer, store *cart.Store) error {
	if err := store.Flush(ctx); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	items, err := store.Products(ctx)
	if err != nil {
		return err
	}
	return printCart(w, items)
}

func printCart(out io.Writer, items domain.CartState) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "Cart is empty.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tQUANTITY")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\n", item.ID, item.Title, item.Price, item.Quantity)
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%d\n", items.TotalQuantity())
	return w.Flush()
}
