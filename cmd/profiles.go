package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pathways-group/skillmap-cli/internal/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the available analysis profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PROFILE\tDESCRIPTION")
		for _, name := range config.ProfileNames() {
			marker := ""
			if name == cfg.Profile {
				marker = " (active)"
			}
			_, _ = fmt.Fprintf(w, "%s%s\t%s\n", name, marker, config.ProfileDescription(name))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
