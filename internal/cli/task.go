package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для работы с задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Управление задачами",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskAbortCmd(clientFn, outputFn),
		newTaskMoveCmd(clientFn, outputFn),
		newTaskExecutionsCmd(clientFn, outputFn),
		newTaskRecurringCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список задач",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(status, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TAG", "STATUS", "OCCURRENCE", "RETRIES"}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{
					t.ID, t.Tag, t.Status, t.Occurrence, strconv.Itoa(t.RetryLimit),
				})
			}

			return outputFn().Print(headers, rows, tasks)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "фильтр по статусу (pending, executing, completed, failed, aborted)")
	cmd.Flags().IntVar(&limit, "limit", 50, "максимум записей")

	return cmd
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tag        string
		taskURL    string
		method     string
		body       string
		occurrence string
		retryLimit int
		actionJSON string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Создать одноразовую задачу",
		Long: `Создаёт одноразовую задачу. Действие задаётся либо флагом --url
(HTTP-запрос), либо флагом --action с полным JSON-описанием действия.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" {
				return fmt.Errorf("--tag is required")
			}

			var action map[string]any
			switch {
			case actionJSON != "":
				if err := json.Unmarshal([]byte(actionJSON), &action); err != nil {
					return fmt.Errorf("invalid --action JSON: %w", err)
				}
			case taskURL != "":
				request := map[string]any{
					"url":    taskURL,
					"method": method,
				}
				if body != "" {
					var data map[string]any
					if err := json.Unmarshal([]byte(body), &data); err != nil {
						return fmt.Errorf("invalid --data JSON: %w", err)
					}
					request["data"] = data
				}
				action = map[string]any{
					"type":         "http-request",
					"http_request": request,
				}
			default:
				return fmt.Errorf("either --url or --action is required")
			}

			req := CreateTaskRequest{
				Tag:    tag,
				Action: action,
			}
			if occurrence != "" {
				req.Occurrence = occurrence
			}
			if retryLimit >= 0 {
				req.RetryLimit = &retryLimit
			}

			task, err := clientFn().CreateTask(req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Task created: %s", task.ID)
			return out.Print(
				[]string{"ID", "TAG", "STATUS", "OCCURRENCE"},
				[][]string{{task.ID, task.Tag, task.Status, task.Occurrence}},
				task,
			)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "тег задачи (обязательно)")
	cmd.Flags().StringVar(&taskURL, "url", "", "URL для действия http-request")
	cmd.Flags().StringVar(&method, "method", "POST", "HTTP-метод действия")
	cmd.Flags().StringVar(&body, "data", "", "тело HTTP-запроса (JSON)")
	cmd.Flags().StringVar(&actionJSON, "action", "", "полное JSON-описание действия")
	cmd.Flags().StringVar(&occurrence, "occurrence", "", "время запуска в RFC3339, по умолчанию сейчас")
	cmd.Flags().IntVar(&retryLimit, "retry-limit", -1, "число повторов при ошибке")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Показать задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", task.ID},
				{"Tag", task.Tag},
				{"Status", task.Status},
				{"Occurrence", task.Occurrence},
				{"Retry limit", strconv.Itoa(task.RetryLimit)},
				{"Created", task.Created},
			}
			if task.ParentID != "" {
				rows = append(rows, []string{"Parent", task.ParentID})
			}

			return outputFn().Print(headers, rows, task)
		},
	}
}

func newTaskAbortCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <id>",
		Short: "Прервать задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().AbortTask(args[0]); err != nil {
				return err
			}
			outputFn().Success("Task aborted: %s", args[0])
			return nil
		},
	}
}

func newTaskMoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <occurrence>",
		Short: "Перенести pending задачу на другое время (RFC3339)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().MoveTask(args[0], args[1]); err != nil {
				return err
			}
			outputFn().Success("Task moved: %s -> %s", args[0], args[1])
			return nil
		},
	}
}

func newTaskExecutionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "executions <id>",
		Short: "Журнал попыток выполнения задачи",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			executions, err := clientFn().ListTaskExecutions(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ATTEMPT", "STATUS", "STARTED", "COMPLETED", "RESULT"}
			rows := make([][]string, 0, len(executions))
			for _, e := range executions {
				rows = append(rows, []string{
					strconv.Itoa(e.Attempt), e.Status, e.Started, e.Completed, e.Result,
				})
			}

			return outputFn().Print(headers, rows, executions)
		},
	}
}

func newTaskRecurringCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Управление recurring задачами",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Список recurring задач",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListRecurringTasks()
			if err != nil {
				return err
			}

			headers := []string{"ID", "TAG", "STATUS", "SCHEDULE"}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.ID, t.Tag, t.Status, t.ScheduleID})
			}

			return outputFn().Print(headers, rows, tasks)
		},
	}

	var (
		tag        string
		scheduleID string
		actionJSON string
	)

	create := &cobra.Command{
		Use:   "create",
		Short: "Создать recurring задачу",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" || scheduleID == "" || actionJSON == "" {
				return fmt.Errorf("--tag, --schedule-id and --action are required")
			}

			var action map[string]any
			if err := json.Unmarshal([]byte(actionJSON), &action); err != nil {
				return fmt.Errorf("invalid --action JSON: %w", err)
			}

			task, err := clientFn().CreateRecurringTask(CreateRecurringTaskRequest{
				Tag:        tag,
				Action:     action,
				ScheduleID: scheduleID,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Recurring task created: %s", task.ID)
			return out.Print(
				[]string{"ID", "TAG", "STATUS", "SCHEDULE"},
				[][]string{{task.ID, task.Tag, task.Status, task.ScheduleID}},
				task,
			)
		},
	}
	create.Flags().StringVar(&tag, "tag", "", "тег задачи (обязательно)")
	create.Flags().StringVar(&scheduleID, "schedule-id", "", "ID расписания (обязательно)")
	create.Flags().StringVar(&actionJSON, "action", "", "JSON-описание действия (обязательно)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Показать recurring задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetRecurringTask(args[0])
			if err != nil {
				return err
			}

			return outputFn().Print(
				[]string{"ID", "TAG", "STATUS", "SCHEDULE", "CREATED"},
				[][]string{{task.ID, task.Tag, task.Status, task.ScheduleID, task.Created}},
				task,
			)
		},
	}

	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Активировать recurring задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().SetRecurringTaskStatus(args[0], "active"); err != nil {
				return err
			}
			outputFn().Success("Recurring task activated: %s", args[0])
			return nil
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Деактивировать recurring задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().SetRecurringTaskStatus(args[0], "inactive"); err != nil {
				return err
			}
			outputFn().Success("Recurring task deactivated: %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, show, activate, deactivate)
	return cmd
}
