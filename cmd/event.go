package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/paygate/internal/core/events"
	"github.com/frahmantamala/paygate/internal/webhook"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Push synthetic merchant events through the webhook producer.`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a merchant event",
	Long: `Publish a merchant event through the webhook producer. A webhook log row
is created and a delivery job is enqueued for the worker.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishEvent(cmd.Context(), args[0])
	},
}

var (
	eventData     string
	eventMerchant string
)

func publishEvent(ctx context.Context, eventType string) error {
	if !slices.Contains(events.MerchantEventTypes, eventType) {
		return fmt.Errorf("unknown event %q; expected one of %v", eventType, events.MerchantEventTypes)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(eventData), &data); err != nil {
		return fmt.Errorf("--data must be a JSON object: %w", err)
	}

	deps, err := initializeDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	producer := webhook.NewProducer(deps.repositories().webhooks, deps.Queue, deps.Logger)
	producer.Register(deps.Bus)

	e := events.NewMerchantEvent(eventType, eventMerchant, data)
	deps.Logger.Info("publishing event", "event_type", eventType, "event_id", e.EventID(), "merchant_id", eventMerchant)

	if err := deps.Bus.PublishSync(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	fmt.Println("event published; webhook log created and delivery enqueued")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "{}", "event data as a JSON object")
	publishEventCmd.Flags().StringVar(&eventMerchant, "merchant", seedMerchantID, "merchant id")

	eventCmd.AddCommand(publishEventCmd)
}
