package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для standalone задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage standalone tasks",
	}

	cmd.AddCommand(
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit KIND",
		Short: "Submit a standalone task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			values, err := parseKeyValues(inputs)
			if err != nil {
				return err
			}

			result, err := client.SubmitTask(SubmitTaskRequest{
				Kind:   args[0],
				Inputs: values,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task submitted: %s (pipeline %s)", result.TaskID, result.Pipeline.ID))
			if watch {
				return watchPipeline(client, out, result.Pipeline.ID)
			}

			out.Print(
				[]string{"TASK_ID", "PIPELINE_ID", "STATE"},
				[][]string{{result.TaskID, result.Pipeline.ID, result.Pipeline.State}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream events until the task finishes")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			errMsg := ""
			if task.Error != nil {
				errMsg = task.Error.Category + ": " + task.Error.Message
				if task.Error.Hint != "" {
					errMsg += " (hint: " + task.Error.Hint + ")"
				}
			}
			out.Print(
				[]string{"ID", "NODE_ID", "KIND", "STATE", "ATTEMPT", "ERROR"},
				[][]string{{task.ID, task.NodeID, task.Kind, task.State, strconv.Itoa(task.Attempt), errMsg}},
				task,
			)
			return nil
		},
	}
}
