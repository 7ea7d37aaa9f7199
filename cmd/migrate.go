package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Println("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
