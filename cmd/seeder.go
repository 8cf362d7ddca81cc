package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/paygate/internal/core/common/ids"
	"github.com/frahmantamala/paygate/internal/merchant"
	"github.com/frahmantamala/paygate/internal/order"
)

// Test merchant credentials, stable so local clients and checkout pages can
// be configured once.
const (
	seedMerchantID     = "550e8400-e29b-41d4-a716-446655440000"
	seedMerchantEmail  = "test@example.com"
	seedMerchantAPIKey = "key_test_abc123"
	seedMerchantSecret = "secret_test_xyz789"
	seedWebhookSecret  = "whsec_test_abc123"
)

var (
	seedWebhookURL string
	seedOrders     int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Create the test merchant (fixed API key and secret) and a few sample orders.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initializeDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()
		return seed(cmd.Context(), deps)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedWebhookURL, "webhook-url", "", "webhook URL for the test merchant")
	seedCmd.Flags().IntVar(&seedOrders, "orders", 3, "number of sample orders to create")
}

func seed(ctx context.Context, deps *Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	repos := deps.repositories()
	svc := merchant.NewService(repos.merchants, nil, deps.Config.Security.BCryptCost, deps.Logger)

	_, err := repos.merchants.GetByID(ctx, seedMerchantID)
	switch {
	case err == nil:
		fmt.Println("test merchant already exists:", seedMerchantEmail)
	case errors.Is(err, merchant.ErrMerchantNotFound):
		hash, err := svc.HashSecret(seedMerchantSecret)
		if err != nil {
			return fmt.Errorf("hash api secret: %w", err)
		}
		webhookSecret := seedWebhookSecret
		m := &merchant.Merchant{
			ID:            seedMerchantID,
			Name:          "Test Merchant",
			Email:         seedMerchantEmail,
			APIKey:        seedMerchantAPIKey,
			APISecretHash: hash,
			WebhookSecret: &webhookSecret,
			IsActive:      true,
		}
		if seedWebhookURL != "" {
			m.WebhookURL = &seedWebhookURL
		}
		if err := repos.merchants.Create(ctx, m); err != nil {
			return fmt.Errorf("insert test merchant: %w", err)
		}
		fmt.Println("Seeded test merchant:", seedMerchantEmail)
	default:
		return fmt.Errorf("lookup test merchant: %w", err)
	}

	if seedWebhookURL != "" {
		secret := seedWebhookSecret
		if err := repos.merchants.UpdateWebhook(ctx, seedMerchantID, seedWebhookURL, &secret); err != nil {
			return fmt.Errorf("set test merchant webhook: %w", err)
		}
	}

	orders := order.NewService(repos.orders, deps.Logger)
	for i := 0; i < seedOrders; i++ {
		receipt, err := ids.Alphanumeric("receipt_", 8)
		if err != nil {
			return err
		}
		o, err := orders.Create(ctx, seedMerchantID, order.CreateOrderDTO{
			Amount:   int64(50000 * (i + 1)),
			Currency: order.DefaultCurrency,
			Receipt:  &receipt,
		})
		if err != nil {
			return fmt.Errorf("create sample order: %w", err)
		}
		fmt.Printf("Seeded order %s amount=%d\n", o.ID, o.Amount)
	}

	fmt.Printf("API key: %s\nAPI secret: %s\nWebhook secret: %s\n", seedMerchantAPIKey, seedMerchantSecret, seedWebhookSecret)
	return nil
}
