package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewProcessCmd создаёт группу команд для работы с процессами.
func NewProcessCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Управление процессами",
	}

	cmd.AddCommand(
		newProcessListCmd(clientFn, outputFn),
		newProcessStartCmd(clientFn, outputFn),
		newProcessShowCmd(clientFn, outputFn),
		newProcessAbortCmd(clientFn, outputFn),
		newProcessTasksCmd(clientFn, outputFn),
	)

	return cmd
}

func newProcessListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var queueID, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список процессов",
		RunE: func(cmd *cobra.Command, args []string) error {
			processes, err := clientFn().ListProcesses(queueID, status)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TAG", "QUEUE", "STATUS", "STARTED"}
			rows := make([][]string, 0, len(processes))
			for _, p := range processes {
				rows = append(rows, []string{p.ID, p.Tag, p.QueueID, p.Status, p.Started})
			}

			return outputFn().Print(headers, rows, processes)
		},
	}

	cmd.Flags().StringVar(&queueID, "queue-id", "", "фильтр по очереди")
	cmd.Flags().StringVar(&status, "status", "", "фильтр по статусу")

	return cmd
}

func newProcessStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		queueID    string
		tag        string
		timeoutMin int
		input      string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Запустить процесс",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueID == "" || tag == "" {
				return fmt.Errorf("--queue-id and --tag are required")
			}

			req := CreateProcessRequest{
				QueueID: queueID,
				Tag:     tag,
			}
			if timeoutMin > 0 {
				req.TimeoutMin = &timeoutMin
			}
			if input != "" {
				var data map[string]any
				if err := json.Unmarshal([]byte(input), &data); err != nil {
					return fmt.Errorf("invalid --input JSON: %w", err)
				}
				req.Input = data
			}

			process, err := clientFn().CreateProcess(req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Process started: %s", process.ID)
			return out.Print(
				[]string{"ID", "TAG", "QUEUE", "STATUS"},
				[][]string{{process.ID, process.Tag, process.QueueID, process.Status}},
				process,
			)
		},
	}

	cmd.Flags().StringVar(&queueID, "queue-id", "", "ID очереди (обязательно)")
	cmd.Flags().StringVar(&tag, "tag", "", "тег процесса (обязательно)")
	cmd.Flags().IntVar(&timeoutMin, "timeout", 0, "таймаут тишины в минутах, 0 без таймаута")
	cmd.Flags().StringVar(&input, "input", "", "входные данные процесса (JSON)")

	return cmd
}

func newProcessShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Показать процесс",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			process, err := clientFn().GetProcess(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", process.ID},
				{"Tag", process.Tag},
				{"Queue", process.QueueID},
				{"Status", process.Status},
				{"Started", process.Started},
				{"Ended", process.Ended},
			}

			return outputFn().Print(headers, rows, process)
		},
	}
}

func newProcessAbortCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <id>",
		Short: "Запросить прерывание процесса",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().AbortProcess(args[0]); err != nil {
				return err
			}
			outputFn().Success("Process abort requested: %s", args[0])
			return nil
		},
	}
}

func newProcessTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <id>",
		Short: "Фазовые задачи процесса",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListProcessTasks(args[0])
			if err != nil {
				return err
			}

			headers := []string{"PHASE", "TASK"}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.Phase, t.TaskID})
			}

			return outputFn().Print(headers, rows, tasks)
		},
	}
}
