package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver pending completions",
	Long:  `Resubmit every finished training the backend has not accepted yet.`,
	Args:  cobra.NoArgs,
	RunE:  runFlush,
}

func init() {
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.runner.FlushOutbox(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d pending completion(s)\n", n)
	return err
}
