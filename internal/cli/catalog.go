package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewCatalogCmd создаёт группу команд для каталога видов задач.
func NewCatalogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the task catalog",
	}

	cmd.AddCommand(
		newCatalogListCmd(clientFn, outputFn),
		newCatalogShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newCatalogListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered task kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListCatalog(category)
			if err != nil {
				return err
			}

			headers := []string{"KIND", "CATEGORY", "IDEMPOTENT", "TIMEOUT_SEC", "DESCRIPTION"}
			rows := make([][]string, len(defs))
			for i, def := range defs {
				rows[i] = []string{
					def.Kind, def.Category,
					strconv.FormatBool(def.Idempotent), strconv.Itoa(def.TimeoutSec),
					def.Description,
				}
			}

			out.Print(headers, rows, defs)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category (LIGHTWEIGHT, ISOLATED)")

	return cmd
}

func newCatalogShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show KIND",
		Short: "Show task kind details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetDefinition(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"KIND", "CATEGORY", "IDEMPOTENT", "TIMEOUT_SEC", "DESCRIPTION"},
				[][]string{{
					def.Kind, def.Category,
					strconv.FormatBool(def.Idempotent), strconv.Itoa(def.TimeoutSec),
					def.Description,
				}},
				def,
			)
			return nil
		},
	}
}
