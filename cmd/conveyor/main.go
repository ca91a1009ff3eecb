// Conveyor CLI — компиляция и локальный прогон графов пайплайнов,
// а также управление сохранёнными pipelines через HTTP API.
//
// Использование:
//
//	conveyor [--api-url URL] [--json] <command> [flags]
//
// Локальные команды (без API):
//
//	compile   Скомпилировать граф в CI-конфигурацию
//	run       Симулировать прогон графа
//	stages    Показать разбиение на стадии
//	validate  Проверить граф
//	backends  Список backend'ов
//	types     Список типов шагов
//
// Команды API:
//
//	pipeline   Управление pipelines
//	execution  История прогонов
//	schedule   Управление schedules
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — pipeline graph compiler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(cli.NewLocalCmds(outputFn)...)
	rootCmd.AddCommand(
		cli.NewPipelineCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
