package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyor/internal/cli"
)

// version устанавливается при сборке через ldflags.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:     "conveyor",
		Short:   "Conveyor CLI — управление задачами, расписаниями, событиями и процессами",
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "адрес Conveyor API")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")

	// Клиент и вывод создаются лениво: после разбора глобальных флагов
	clientFn := func() *cli.Client {
		return cli.NewClient(apiURL)
	}
	outputFn := func() *cli.Output {
		return cli.NewOutput(jsonOutput)
	}

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewEventCmd(clientFn, outputFn),
		cli.NewProcessCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
