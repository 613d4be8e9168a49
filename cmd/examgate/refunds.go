package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRefundsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refunds",
		Short: "Inspect and approve pending refund requests",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:     "list",
		Short:   "List grants waiting for refund approval",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := c.operator()
			if err != nil {
				return err
			}
			sh, err := openStore(cmd.Context(), c.cfg.StoreBackend, c.log)
			if err != nil {
				return err
			}
			defer sh.close()
			svc, _, err := c.newService(sh.store)
			if err != nil {
				return err
			}

			refunds, err := svc.ListRefundRequests(cmd.Context(), admin)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(refunds)
			}
			if len(refunds) == 0 {
				fmt.Fprintln(out, "No pending refund requests.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tPAYMENT\tTIER\tSCOPE\tREQUESTED\tREASON")
			for _, r := range refunds {
				scope, requested := "-", "-"
				if r.Grant.Scope != nil {
					scope = r.Grant.Scope.String()
				}
				if r.Grant.RefundRequestedAt != nil {
					requested = r.Grant.RefundRequestedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.UserID, r.Grant.PaymentRef, r.Grant.Tier, scope, requested, r.Grant.RefundReason)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print the queue as JSON")

	approve := &cobra.Command{
		Use:   "approve <user-id> <payment-ref>",
		Short: "Refund the payment through the provider and retire the grant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := c.operator()
			if err != nil {
				return err
			}
			sh, err := openStore(cmd.Context(), c.cfg.StoreBackend, c.log)
			if err != nil {
				return err
			}
			defer sh.close()
			svc, _, err := c.newService(sh.store)
			if err != nil {
				return err
			}

			rec, err := svc.ApproveRefund(cmd.Context(), admin, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refunded %s for %s. Effective tier: %s\n",
				args[1], args[0], displayTier(rec.EffectiveTier.String()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.admin, "as", "", "administrator user id (defaults to the first ADMIN_USER_IDS entry)")
	cmd.AddCommand(list, approve)
	return cmd
}

func displayTier(t string) string {
	if t == "" {
		return "none"
	}
	return t
}
