package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show provider configuration and remaining daily budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tCONFIGURED\tREMAINING")
		for _, a := range e.Registry.All() {
			remaining := "-"
			if a.Configured() {
				n, err := e.Budget.Remaining(ctx, a.Name())
				if err != nil {
					return err
				}
				if n < 0 {
					remaining = "unlimited"
				} else {
					remaining = fmt.Sprintf("%d", n)
				}
			}
			fmt.Fprintf(w, "%s\t%t\t%s\n", a.Name(), a.Configured(), remaining)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
