// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/pkg/logger"
	"github.com/skalibog/perpsentry/pkg/models"
)

// History журнал сигналов, алертов и сделок для последующего анализа.
// Только запись: ядро историю не читает.
type History interface {
	RecordSignals(ctx context.Context, pipeline string, signals []models.Signal)
	RecordAlert(ctx context.Context, pipeline, tag string, sig models.Signal)
	RecordTrades(ctx context.Context, trades []paper.ClosedTrade)
	Close()
}

// NopHistory история выключена
type NopHistory struct{}

func (NopHistory) RecordSignals(context.Context, string, []models.Signal) {}
func (NopHistory) RecordAlert(context.Context, string, string, models.Signal) {}
func (NopHistory) RecordTrades(context.Context, []paper.ClosedTrade) {}
func (NopHistory) Close() {}

// InfluxDBHistory реализует History поверх InfluxDB
type InfluxDBHistory struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
}

// NewInfluxDBHistory создает журнал InfluxDB и проверяет соединение
func NewInfluxDBHistory(ctx context.Context, cfg config.InfluxConfig) (*InfluxDBHistory, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBHistory{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// OpenHistory InfluxDB при заданном URL, иначе NopHistory. Недоступная база
// не мешает сканированию: пишем предупреждение и работаем без истории.
func OpenHistory(ctx context.Context, cfg config.InfluxConfig) History {
	if cfg.URL == "" {
		return NopHistory{}
	}
	h, err := NewInfluxDBHistory(ctx, cfg)
	if err != nil {
		logger.Warn("История InfluxDB недоступна", zap.Error(err))
		return NopHistory{}
	}
	return h
}

// Close закрывает соединение с базой данных
func (s *InfluxDBHistory) Close() {
	s.client.Close()
}

func (s *InfluxDBHistory) write(ctx context.Context, what string, points ...*write.Point) {
	if len(points) == 0 {
		return
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		logger.Warn("Ошибка записи в InfluxDB", zap.String("measurement", what), zap.Error(err))
	}
}

func signalPoint(pipeline string, sig models.Signal) *write.Point {
	return influxdb2.NewPoint(
		"signals",
		map[string]string{
			"pipeline": pipeline,
			"symbol":   sig.Symbol,
			"kind":     string(sig.Kind),
		},
		map[string]interface{}{
			"price":        sig.EntryPrice,
			"rsi":          sig.RSI,
			"phase":        string(sig.Phase),
			"strength":     sig.StrengthScore,
			"grade":        string(sig.StrengthGrade),
			"oi_change":    sig.OIChange,
			"price_change": sig.PriceChange1h,
			"vol_ratio":    sig.VolRatio,
			"tags":         strings.Join(sig.Tags, ","),
			"admissible":   sig.Admissible,
		},
		sig.Timestamp,
	)
}

// RecordSignals сохраняет направленные сигналы цикла
func (s *InfluxDBHistory) RecordSignals(ctx context.Context, pipeline string, signals []models.Signal) {
	points := make([]*write.Point, 0, len(signals))
	for _, sig := range signals {
		if sig.Kind == models.KindNone {
			continue
		}
		points = append(points, signalPoint(pipeline, sig))
	}
	s.write(ctx, "signals", points...)
}

// RecordAlert сохраняет отправленный алерт
func (s *InfluxDBHistory) RecordAlert(ctx context.Context, pipeline, tag string, sig models.Signal) {
	point := influxdb2.NewPoint(
		"alerts",
		map[string]string{
			"pipeline": pipeline,
			"symbol":   sig.Symbol,
			"tag":      tag,
		},
		map[string]interface{}{
			"kind":  string(sig.Kind),
			"grade": string(sig.StrengthGrade),
			"price": sig.EntryPrice,
		},
		sig.Timestamp,
	)
	s.write(ctx, "alerts", point)
}

// RecordTrades сохраняет реализации виртуальной книги
func (s *InfluxDBHistory) RecordTrades(ctx context.Context, trades []paper.ClosedTrade) {
	points := make([]*write.Point, 0, len(trades))
	for _, t := range trades {
		points = append(points, influxdb2.NewPoint(
			"trades",
			map[string]string{
				"symbol":    t.Symbol,
				"direction": string(t.Direction),
				"reason":    string(t.Reason),
			},
			map[string]interface{}{
				"entry":    t.EntryPrice,
				"exit":     t.ExitPrice,
				"fraction": t.Fraction,
				"pnl_pct":  t.PnLPct,
				"pnl_usd":  t.PnLUSD,
				"grade":    string(t.StrengthGrade),
				"held_min": t.ExitTime.Sub(t.EntryTime).Minutes(),
			},
			t.ExitTime,
		))
	}
	s.write(ctx, "trades", points...)
}

var (
	_ History = (*InfluxDBHistory)(nil)
	_ History = NopHistory{}
)
