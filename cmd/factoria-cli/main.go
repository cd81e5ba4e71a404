// Factoria CLI — инструмент командной строки для просмотра заказов
// и линий через HTTP API командира.
//
// Использование:
//
//	factoria [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	orders  Заказы: list, show, submit, cancel
//	lines   Линии: list, snapshot, history
//	stats   Сводная статистика
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Factoria/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "factoria",
		Short:         "Factoria CLI — AGV production line coordinator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8090"
	if v := os.Getenv("FACTORIA_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewOrderCmd(clientFn, outputFn),
		cli.NewLineCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
