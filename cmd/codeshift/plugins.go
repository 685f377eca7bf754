package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List registered plugins and the format pairs they convert",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		reg := e.Registry()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFROM\tTO\tMODE\tASYNC\tDEPENDENCIES")
		for _, d := range reg.Descriptors() {
			deps := make([]string, 0, len(d.Dependencies))
			for _, r := range d.Dependencies {
				deps = append(deps, r.Name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", d.Name,
				withAliases(d.From, reg.Aliases), withAliases(d.To, reg.Aliases),
				d.Mode(), d.Async, strings.Join(deps, ","))
		}
		return tw.Flush()
	},
}

func init() { rootCmd.AddCommand(pluginsCmd) }

// withAliases renders "ts(typescript,mts),tsx".
func withAliases(names []string, aliases func(string) []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if syn := aliases(n); len(syn) > 0 {
			n += "(" + strings.Join(syn, ",") + ")"
		}
		parts = append(parts, n)
	}
	return strings.Join(parts, ",")
}
