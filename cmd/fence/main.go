// Command fence emits grammar text for structured-output extractors.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fencegen/fence/envconfig"
	"github.com/fencegen/fence/grammar"
	"github.com/fencegen/fence/logutil"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	root := &cobra.Command{
		Use:           "fence",
		Short:         "Grammar-constrained decoding tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(grammarCmd(), envCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func grammarCmd() *cobra.Command {
	var (
		schemaPath string
		name       string
		capture    string
		start      string
	)

	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Emit grammar text for a JSON schema",
		Long: `Emit the grammar text a grammar-compiling engine would consume to
constrain generation to the given JSON schema. Without a schema the
grammar accepts any JSON object or array.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schema []byte
			if schemaPath != "" {
				b, err := os.ReadFile(schemaPath)
				if err != nil {
					return err
				}
				schema = b
			}

			e, err := grammar.NewJSON(name, capture, schema)
			if err != nil {
				return err
			}
			text, err := grammar.Assemble(start, e)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "JSON schema file")
	cmd.Flags().StringVarP(&name, "name", "n", "json", "base nonterminal name")
	cmd.Flags().StringVarP(&capture, "capture", "c", "", "capture name")
	cmd.Flags().StringVar(&start, "start", "start", "start rule name")
	return cmd
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			for _, name := range names {
				v := vars[name]
				fmt.Fprintf(w, "%s\t%v\t%s\n", v.Name, v.Value, v.Description)
			}
			return w.Flush()
		},
	}
}
