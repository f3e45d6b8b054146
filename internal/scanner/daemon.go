package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/logger"
)

// Serve запускает все конвейеры по расписанию до отмены ctx. У каждого
// конвейера своя горутина и свой тикер, поэтому его циклы не пересекаются;
// пропущенные за время долгого цикла тики отбрасываются.
func (s *Scanner) Serve(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range s.config.Pipelines {
		g.Go(func() error {
			s.schedule(ctx, p)
			return nil
		})
	}
	err := g.Wait()
	logger.Info("Планировщик остановлен")
	return err
}

func (s *Scanner) schedule(ctx context.Context, p config.PipelineConfig) {
	every := time.Duration(p.EveryMinutes) * time.Minute
	logger.Info("Конвейер запущен",
		zap.String("pipeline", p.Name),
		zap.String("interval", p.Interval),
		zap.Duration("every", every))

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		// ошибка цикла уже залогирована, следующий цикл по расписанию
		_ = s.Run(ctx, p)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
