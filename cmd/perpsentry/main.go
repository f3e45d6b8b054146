package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/pkg/logger"
)

func main() {
	defer logger.Sync()

	var configPath string
	root := &cobra.Command{
		Use:           "perpsentry",
		Short:         "Сканер бессрочных фьючерсов: OI, цена, алерты и виртуальная книга",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "путь к файлу конфигурации")

	root.AddCommand(
		runCmd(&configPath),
		scanCmd(&configPath),
		statusCmd(&configPath),
		reportCmd(&configPath),
		closeCmd(&configPath),
		resetCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		logger.Error("Команда завершилась с ошибкой", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}
