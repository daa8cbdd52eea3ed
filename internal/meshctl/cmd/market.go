package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Interact with the resource sharing market",
}

var marketOffersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List open offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		offers, err := apiClient.ListOffers()
		if err != nil {
			return fmt.Errorf("failed to list offers: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(offers))
		return nil
	},
}

var (
	offerProvider string
	offerType     string
	offerAmount   float64
	offerPrice    float64
	offerTTL      time.Duration
)

var marketOfferCmd = &cobra.Command{
	Use:   "offer",
	Short: "Submit a resource offer",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := parseNodeKey(offerProvider)
		if err != nil {
			return fmt.Errorf("invalid --provider: %w", err)
		}
		offer := model.ResourceOffer{
			Provider:     provider,
			ResourceType: model.ResourceType(offerType),
			Amount:       offerAmount,
			PricePerHour: offerPrice,
			ExpiresAt:    time.Now().Add(offerTTL),
		}
		if err := apiClient.SubmitOffer(offer); err != nil {
			return fmt.Errorf("failed to submit offer: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Offer submitted.")
		return nil
	},
}

var (
	reqConsumer string
	reqType     string
	reqAmount   float64
	reqMaxPrice float64
	reqDuration time.Duration
)

var marketRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit a resource request",
	RunE: func(cmd *cobra.Command, args []string) error {
		consumer, err := parseNodeKey(reqConsumer)
		if err != nil {
			return fmt.Errorf("invalid --consumer: %w", err)
		}
		req := model.ResourceRequest{
			Consumer:        consumer,
			ResourceType:    model.ResourceType(reqType),
			Amount:          reqAmount,
			MaxPricePerHour: reqMaxPrice,
			Duration:        reqDuration,
		}
		matched, err := apiClient.SubmitRequest(req)
		if err != nil {
			return fmt.Errorf("failed to submit request: %w", err)
		}
		if len(matched) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Request queued; no matching offers yet.")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(matched))
		return nil
	},
}

var marketAgreementsCmd = &cobra.Command{
	Use:   "agreements",
	Short: "List sharing agreements",
	RunE: func(cmd *cobra.Command, args []string) error {
		agreements, err := apiClient.ListAgreements()
		if err != nil {
			return fmt.Errorf("failed to list agreements: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(agreements))
		return nil
	},
}

var marketCancelCmd = &cobra.Command{
	Use:   "cancel <agreement-id>",
	Short: "Cancel an active agreement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CancelAgreement(args[0]); err != nil {
			return fmt.Errorf("failed to cancel agreement: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agreement %q cancelled.\n", args[0])
		return nil
	},
}

var marketCompleteCmd = &cobra.Command{
	Use:   "complete <agreement-id>",
	Short: "Mark an agreement completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CompleteAgreement(args[0]); err != nil {
			return fmt.Errorf("failed to complete agreement: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agreement %q completed.\n", args[0])
		return nil
	},
}

// parseNodeKey decodes a 64-character hex node key.
func parseNodeKey(key string) (model.NodeID, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return model.NodeID{}, fmt.Errorf("node key must be 64 hex characters")
	}
	var id model.NodeID
	copy(id.ID[:], raw)
	return id, nil
}

func init() {
	marketOfferCmd.Flags().StringVar(&offerProvider, "provider", "", "provider node key (64 hex chars)")
	marketOfferCmd.Flags().StringVar(&offerType, "type", "cpu", "resource type")
	marketOfferCmd.Flags().Float64Var(&offerAmount, "amount", 1, "offered amount")
	marketOfferCmd.Flags().Float64Var(&offerPrice, "price", 0, "price per unit-hour")
	marketOfferCmd.Flags().DurationVar(&offerTTL, "ttl", time.Hour, "how long the offer stays open")

	marketRequestCmd.Flags().StringVar(&reqConsumer, "consumer", "", "consumer node key (64 hex chars)")
	marketRequestCmd.Flags().StringVar(&reqType, "type", "cpu", "resource type")
	marketRequestCmd.Flags().Float64Var(&reqAmount, "amount", 1, "requested amount")
	marketRequestCmd.Flags().Float64Var(&reqMaxPrice, "max-price", 0, "maximum acceptable price per unit-hour")
	marketRequestCmd.Flags().DurationVar(&reqDuration, "duration", time.Hour, "requested duration")

	marketCmd.AddCommand(marketOffersCmd)
	marketCmd.AddCommand(marketOfferCmd)
	marketCmd.AddCommand(marketRequestCmd)
	marketCmd.AddCommand(marketAgreementsCmd)
	marketCmd.AddCommand(marketCancelCmd)
	marketCmd.AddCommand(marketCompleteCmd)
	rootCmd.AddCommand(marketCmd)
}
