package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/internal/ui"
	"github.com/skalibog/perpsentry/pkg/logger"
)

// signalContext отменяется по SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Запустить все конвейеры по расписанию",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			go func() {
				if err := metrics.Serve(ctx, a.config.Metrics.Addr); err != nil {
					logger.Error("Ошибка сервера метрик", zap.Error(err))
				}
			}()

			logger.Info("PerpSentry запущен", zap.Int("pipelines", len(a.config.Pipelines)))
			err = a.scanner.Serve(ctx)
			logger.Info("Завершение работы")
			return err
		},
	}
}

func scanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [pipeline...]",
		Short: "Один цикл указанных конвейеров (по умолчанию всех)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				for _, p := range a.config.Pipelines {
					args = append(args, p.Name)
				}
			}
			for _, name := range args {
				p, ok := a.scanner.Pipeline(name)
				if !ok {
					return fmt.Errorf("неизвестный конвейер %q", name)
				}
				if err := a.scanner.Run(ctx, p); err != nil {
					return fmt.Errorf("конвейер %s: %w", name, err)
				}
			}
			return nil
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	var logLines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Книга, активные записи трекеров и последние логи",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.scanner.BookSummary(ctx)
			if err != nil {
				return err
			}
			sections := []string{ui.RenderBook(sum)}

			for _, p := range a.config.Pipelines {
				if p.Kind != "trend" {
					continue
				}
				entries, err := storage.NewTrackerStore(a.config.Storage.StateDir, p.Name).Load()
				if err != nil {
					logger.Warn("Состояние трекера недоступно", zap.String("pipeline", p.Name), zap.Error(err))
				}
				sections = append(sections, ui.RenderTracker(p.Name, entries))
			}

			if a.config.Log.File != "" {
				logs, err := ui.TailLogs(a.config.Log.File, logLines)
				if err != nil {
					return fmt.Errorf("ошибка чтения логов: %w", err)
				}
				sections = append(sections, ui.RenderLogs(logs))
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Screen(time.Now(), sections...))
			return nil
		},
	}
	cmd.Flags().IntVar(&logLines, "logs", 15, "сколько последних строк лога показать")
	return cmd
}

func reportCmd(configPath *string) *cobra.Command {
	var send bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Сводка виртуальной книги",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.scanner.BookSummary(ctx)
			if err != nil {
				return err
			}
			msg, err := notify.FormatSummary(sum)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)

			if send {
				return notify.New(a.config.Notify).Emit(ctx, msg, a.config.Notify.BookThreadID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "также отправить сводку в вебхук")
	return cmd
}

func closeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close <symbol>",
		Short: "Закрыть остаток позиции по текущей цене",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.scanner.ClosePosition(ctx, args[0])
			if err != nil {
				return err
			}
			msg, err := notify.FormatTrades([]paper.ClosedTrade{rec})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func resetCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Сбросить виртуальную книгу к стартовому капиталу",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("сброс удаляет позиции и историю, подтвердите флагом --yes")
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.scanner.ResetBook()
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "подтвердить сброс")
	return cmd
}
