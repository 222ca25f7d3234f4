package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/media-librarian/internal/util"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize DATABASE",
	Short: "Create indexes, rebuild full-text mirrors and vacuum",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		if err := a.store.Optimize(cmd.Context()); err != nil {
			return err
		}
		util.SuccessLog("Optimized %s in %v", args[0], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}
