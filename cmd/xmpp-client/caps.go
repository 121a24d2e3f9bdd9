package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exavolt/xmpp-client/pkg/xmppcaps"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Print the entity capabilities the client advertises",
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := xmppcaps.Default()
		fmt.Fprintf(cmd.OutOrStdout(), "node: %s\n", desc.Node())
		fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", desc.HashName())
		fmt.Fprintf(cmd.OutOrStdout(), "ver:  %s\n", desc.VerificationString())
		for _, identity := range desc.Identities() {
			fmt.Fprintf(cmd.OutOrStdout(), "identity: %s/%s %s\n", identity.Category, identity.Type, identity.Name)
		}
		for _, feature := range desc.Features() {
			fmt.Fprintf(cmd.OutOrStdout(), "feature: %s\n", feature)
		}
		return nil
	},
}
