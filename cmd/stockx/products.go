package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	stockx "github.com/stockapp/stockx-go"
)

var (
	productsPage    int
	productsRefresh bool
	createSKU       string
	createPrice     float64
	createQuantity  int
	createImagePath string
	stockQuantity   int
)

func init() {
	productsListCmd.Flags().IntVar(&productsPage, "page", 1, "page to fetch")
	productsListCmd.Flags().BoolVar(&productsRefresh, "refresh", false, "prefer a live fetch over cached data")
	productsCreateCmd.Flags().StringVar(&createSKU, "sku", "", "product SKU")
	productsCreateCmd.Flags().Float64Var(&createPrice, "price", 0, "unit price")
	productsCreateCmd.Flags().IntVar(&createQuantity, "quantity", 0, "initial stock quantity")
	productsCreateCmd.Flags().StringVar(&createImagePath, "image", "", "path to a product image")
	stocksAddCmd.Flags().IntVar(&stockQuantity, "quantity", 1, "quantity to add")

	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsSearchCmd)
	productsCmd.AddCommand(productsStatsCmd)
	productsCmd.AddCommand(productsCreateCmd)
	stocksCmd.AddCommand(stocksHistoryCmd)
	stocksCmd.AddCommand(stocksAddCmd)
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(stocksCmd)
	rootCmd.AddCommand(salesCmd)
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Browse and manage the product catalog",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a page of products (cached when offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		page, err := client.Catalog().FetchPage(ctx, productsPage, productsRefresh)
		if err != nil {
			return err
		}
		printProducts(page.Products)
		if page.Stale {
			fmt.Fprintln(os.Stderr, "(showing cached data)")
		}
		fmt.Println(pageFooter(page.Meta))
		return nil
	},
}

var productsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		products, err := client.Catalog().Search(ctx, args[0])
		if err != nil {
			return err
		}
		if len(products) == 0 {
			fmt.Println("No products found.")
			return nil
		}
		printProducts(products)
		return nil
	},
}

var productsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stats, err := client.Products().Stats(ctx)
		if err != nil {
			return err
		}
		if stats == nil {
			return nil
		}
		fmt.Printf("Products:  %d\n", stats.TotalProducts)
		fmt.Printf("Stock:     %d\n", stats.TotalStock)
		fmt.Printf("Value:     %.2f\n", stats.TotalValue)
		fmt.Printf("Low stock: %d\n", stats.LowStockCount)
		return nil
	},
}

var productsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		var image []byte
		if createImagePath != "" {
			image, err = os.ReadFile(createImagePath)
			if err != nil {
				return fmt.Errorf("cannot read image: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		product, err := client.Products().Create(ctx, stockx.NewProduct{
			Name:     args[0],
			SKU:      createSKU,
			Price:    createPrice,
			Quantity: createQuantity,
		}, image)
		if err != nil {
			return err
		}
		if product != nil {
			fmt.Printf("Created %s (%s)\n", product.Name, product.ID)
		}
		return nil
	},
}

var stocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "View and record stock movements",
}

var stocksHistoryCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show stock history for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entries, err := client.Stocks().History(ctx, args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %+d\n", e.CreatedAt.Format(time.RFC3339), e.Quantity)
		}
		return nil
	},
}

var stocksAddCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Record a stock movement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := client.Stocks().Add(ctx, args[0], stockQuantity); err != nil {
			return err
		}
		fmt.Printf("Added %d to product %s\n", stockQuantity, args[0])
		return nil
	},
}

var salesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Show recent sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sales, err := client.Sales().Recent(ctx)
		if err != nil {
			return err
		}
		if len(sales) == 0 {
			fmt.Println("No recent sales.")
			return nil
		}
		for _, s := range sales {
			fmt.Printf("%s  %-24s x%d  %.2f\n", s.SoldAt.Format("2006-01-02"), s.ProductName, s.Quantity, s.Total)
		}
		return nil
	},
}

func pageFooter(meta stockx.PageMeta) string {
	if meta.HasMore {
		return fmt.Sprintf("Page %d (more available)", meta.CurrentPage)
	}
	return fmt.Sprintf("Page %d (end of catalog)", meta.CurrentPage)
}

func printProducts(products []stockx.Product) {
	for _, p := range products {
		fmt.Printf("%-10s %-28s %-14s %8.2f  stock %d\n", p.ID, p.Name, p.SKU, p.Price, p.TotalStock)
	}
}
