package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для работы с расписаниями.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Управление расписаниями",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список расписаний",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "TYPE"}
			rows := make([][]string, 0, len(schedules))
			for _, s := range schedules {
				rows = append(rows, []string{s.ID, s.Name, s.Type})
			}

			return outputFn().Print(headers, rows, schedules)
		},
	}
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Создать расписание из JSON-файла",
		Long: `Создаёт расписание из JSON-описания. Файл должен содержать поля
name, type и payload соответствующего типа (fixed, weekly, monthly, logical).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s: not a valid JSON document", file)
			}

			schedule, err := clientFn().CreateSchedule(data)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Schedule created: %s", schedule.ID)
			return out.Print(
				[]string{"ID", "NAME", "TYPE"},
				[][]string{{schedule.ID, schedule.Name, schedule.Type}},
				schedule,
			)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "путь к JSON-описанию расписания")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Показать расписание",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}

			return outputFn().Print(
				[]string{"ID", "NAME", "TYPE"},
				[][]string{{schedule.ID, schedule.Name, schedule.Type}},
				schedule,
			)
		},
	}
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Удалить расписание",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSchedule(args[0]); err != nil {
				return err
			}
			outputFn().Success("Schedule deleted: %s", args[0])
			return nil
		},
	}
}
