package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var reference string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Verify stuck orders against the payment gateway",
		Long: `Without --ref, sweeps one batch of Pending orders older than
RECONCILE_STUCK_AFTER. With --ref, verifies a single gateway reference.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if reference != "" {
				v, err := a.orders.VerifyPayment(cmd.Context(), reference)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}

			sum, err := a.worker().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("found %d, applied %d, unsettled %d, failed %d\n", sum.Found, sum.Applied, sum.Unsettled, sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "", "gateway reference to verify")
	return cmd
}
