package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineSubmitCmd(clientFn, outputFn),
		newPipelineListCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineCancelCmd(clientFn, outputFn),
		newPipelineTasksCmd(clientFn, outputFn),
		newPipelineEventsCmd(clientFn, outputFn),
		newPipelineWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var name string
	var inputs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pipeline from a JSON graph file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read graph file: %w", err)
			}

			var req SubmitPipelineRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("invalid graph file: %w", err)
			}
			if name != "" {
				req.Name = name
			}

			globals, err := parseKeyValues(inputs)
			if err != nil {
				return err
			}
			if len(globals) > 0 {
				if req.GlobalInputs == nil {
					req.GlobalInputs = make(map[string]any)
				}
				for k, v := range globals {
					req.GlobalInputs[k] = v
				}
			}

			p, err := client.SubmitPipeline(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline submitted: %s", p.ID))
			if watch {
				return watchPipeline(client, out, p.ID)
			}

			out.Print(
				[]string{"ID", "NAME", "STATE", "NODES", "CREATED"},
				[][]string{{p.ID, p.Name, p.State, strconv.Itoa(p.NodeCount), p.CreatedAt}},
				p,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to JSON graph file (required)")
	cmd.Flags().StringVar(&name, "name", "", "Pipeline name (overrides the one in the file)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Global input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream events until the pipeline finishes")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipelines by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines(state, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATE", "NODES", "ERROR", "CREATED"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = []string{p.ID, p.Name, p.State, strconv.Itoa(p.NodeCount), p.Error, p.CreatedAt}
			}

			out.Print(headers, rows, pipelines)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "RUNNING", "Pipeline state (PENDING, RUNNING, COMPLETED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "STATE", "NODES", "DURATION_MS", "ERROR", "CREATED"},
				[][]string{{
					p.ID, p.Name, p.State, strconv.Itoa(p.NodeCount),
					strconv.FormatInt(p.DurationMs, 10), p.Error, p.CreatedAt,
				}},
				p,
			)
			return nil
		},
	}
}

func newPipelineCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Request pipeline cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.CancelPipeline(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested: %s", args[0]))
			return nil
		},
	}
}

func newPipelineTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks ID",
		Short: "List tasks of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListPipelineTasks(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "NODE_ID", "KIND", "STATE", "ATTEMPT", "ERROR"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				errMsg := ""
				if t.Error != nil {
					errMsg = t.Error.Category + ": " + t.Error.Message
				}
				rows[i] = []string{t.ID, t.NodeID, t.Kind, t.State, strconv.Itoa(t.Attempt), errMsg}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}
}

func newPipelineEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var fromSequence uint64

	cmd := &cobra.Command{
		Use:   "events ID",
		Short: "List pipeline events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListEvents(args[0], fromSequence)
			if err != nil {
				return err
			}

			headers := []string{"SEQ", "KIND", "NODE_ID", "CREATED"}
			rows := make([][]string, len(events))
			for i, ev := range events {
				rows[i] = []string{strconv.FormatUint(ev.Sequence, 10), ev.Kind, ev.NodeID, ev.CreatedAt}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&fromSequence, "from-sequence", 0, "Return events with sequence greater than this")

	return cmd
}

func newPipelineWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream pipeline events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchPipeline(clientFn(), outputFn(), args[0])
		},
	}
}

// watchPipeline печатает события pipeline по мере поступления,
// пока сервер не закроет стрим терминальным событием.
func watchPipeline(client *Client, out *Output, id string) error {
	return client.StreamEvents(id, 0, func(ev EventResponse) error {
		line := fmt.Sprintf("[%d] %s", ev.Sequence, ev.Kind)
		if ev.NodeID != "" {
			line += " node=" + ev.NodeID
		}
		if errMsg, ok := ev.Payload["error"].(string); ok {
			line += " error=" + strconv.Quote(errMsg)
		}
		if hint, ok := ev.Payload["hint"].(string); ok {
			line += " hint=" + strconv.Quote(hint)
		}
		out.Success(line)
		return nil
	})
}
