package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewLearningCmd создаёт группу команд для заметок об исправлениях отказов.
func NewLearningCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Manage failure remediation notes",
	}

	cmd.AddCommand(
		newLearningNoteCmd(clientFn, outputFn),
		newLearningNotesCmd(clientFn, outputFn),
		newLearningHintCmd(clientFn, outputFn),
	)

	return cmd
}

func newLearningNoteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "note KIND TEXT",
		Short: "Record a remediation note for a failure signature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			err := client.AddNote(AddNoteRequest{
				Kind:     args[0],
				Category: category,
				Note:     args[1],
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Note recorded for %s/%s", args[0], category))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "TaskLogicError", "Error category of the signature")

	return cmd
}

func newLearningNotesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "notes KIND",
		Short: "Show note history for a failure signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			notes, err := client.ListNotes(args[0], category)
			if err != nil {
				return err
			}

			headers := []string{"KIND", "CATEGORY", "NOTE", "OCCURRENCES", "CREATED"}
			rows := make([][]string, len(notes))
			for i, n := range notes {
				rows[i] = []string{n.Kind, n.Category, n.Note, strconv.Itoa(n.Occurrences), n.CreatedAt}
			}

			out.Print(headers, rows, notes)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "TaskLogicError", "Error category of the signature")

	return cmd
}

func newLearningHintCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "hint KIND",
		Short: "Show the current hint for a failure signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			hint, err := client.GetHint(args[0], category)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"KIND", "CATEGORY", "HINT"},
				[][]string{{args[0], category, hint}},
				map[string]string{"kind": args[0], "category": category, "hint": hint},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "TaskLogicError", "Error category of the signature")

	return cmd
}
