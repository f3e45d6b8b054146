package config

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Venues: []VenueConfig{
				{Name: "binance", MinDelayMs: 100},
				{Name: "bybit", MinDelayMs: 150},
				{Name: "okx", MinDelayMs: 200},
			},
			TimeoutSeconds: 10,
			Retries:        2,
			BackoffMillis:  500,
			Concurrency:    8,
		},
		Scan: ScanConfig{
			MinOIUSD:             5_000_000,
			MinVolume24h:         20_000_000,
			CycleDeadlineSeconds: 120,
		},
		Pipelines: []PipelineConfig{
			{Name: "hourly", Kind: "trend", Interval: "1h", EveryMinutes: 60, CandleLimit: 150, Paper: true},
			{Name: "quarter", Kind: "trend", Interval: "15m", EveryMinutes: 15, CandleLimit: 150},
			{Name: "early", Kind: "early", Interval: "5m", EveryMinutes: 5, CandleLimit: 30},
			{Name: "oi5min", Kind: "oi5min", Interval: "5m", EveryMinutes: 5},
		},
		Signal: SignalConfig{
			OIThreshold:      5,
			PriceThreshold:   3,
			PendingOI:        8,
			PendingPrice:     2,
			EarlyPriceChange: 1.5,
			EarlyVolRatio:    2.5,
			EarlyLookback:    12,
			VolRecent:        3,
			VolPrior:         20,
			SwingLength:      3,
			ADXTrend:         25,
			FundingExtreme:   0.001,
		},
		Tracker: TrackerConfig{
			EvictHours:           6,
			SustainedMinutes:     30,
			DecayRatio:           0.5,
			CooldownMinutes:      90,
			CooldownHistoryHours: 24,
		},
		OI5Min: OI5MinConfig{
			ChangeThreshold: 3,
			Extreme:         8,
			CooldownMin:     90,
		},
		Paper: PaperConfig{
			Capital:       10_000,
			PositionPct:   10,
			MaxPositions:  5,
			SLPct:         4,
			TP1Pct:        3,
			TP2Pct:        5,
			TimeExitHours: 4,
			MinGrade:      "B",
			RiskMode:      "flat",
			TrailPct:      2,
			OBEpsilonPct:  0.1,
		},
		Notify: NotifyConfig{
			ChunkSize:      1900,
			MaxRetries:     3,
			TimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			StateDir: "state",
		},
		Log: LogConfig{
			Level:   "info",
			File:    "perpsentry.json.log",
			Console: true,
		},
	}
}
