package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Parse and compile rule documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd)
			for _, path := range args {
				_, bundle, err := loadFile(log, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d keys, %d models, %d rules, fingerprint %s)\n",
					path, bundle.Registry.Len(), len(bundle.Models), bundle.Rules, bundle.Fingerprint)
			}
			return nil
		},
	}
}
