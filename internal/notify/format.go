package notify

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/pkg/models"
)

// DisplayZone часовой пояс сообщений
var DisplayZone = time.FixedZone("UTC+8", 8*60*60)

// Alert данные одного алерта трекера или кулдауна
type Alert struct {
	Pipeline string
	Interval string
	Tag      string
	Emoji    string
	Signal   models.Signal
	Count    int
	Minutes  float64
}

// OIMove резкое изменение OI за 5 минут
type OIMove struct {
	Symbol      string
	Kind        models.SignalKind
	OIChange    float64
	PriceChange float64
	OIUSD       float64
	Extreme     bool
	Timestamp   time.Time
}

var funcs = template.FuncMap{
	"pct":   func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
	"usd":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"susd":  func(v float64) string { return fmt.Sprintf("%+.2f", v) },
	"price": formatPrice,
	"share": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"time":  func(t time.Time) string { return t.In(DisplayZone).Format("2006-01-02 15:04 UTC+8") },
	"join":  strings.Join,
	"musd":  func(v float64) string { return fmt.Sprintf("%.1fM", v/1e6) },
	"rate":  func(v float64) string { return fmt.Sprintf("%+.4f%%", v*100) },
	"reasonEmoji": func(r paper.Reason) string {
		switch r {
		case paper.ReasonSL:
			return "🛑"
		case paper.ReasonTime:
			return "⌛"
		case paper.ReasonManual:
			return "✋"
		default:
			return "💰"
		}
	},
}

var templates = template.Must(template.New("notify").Funcs(funcs).Parse(`
{{define "alert"}}{{.Emoji}} **{{.Tag}}** {{.Signal.Symbol}} {{.Signal.Kind}} · {{.Pipeline}} {{.Interval}}
Цена {{price .Signal.EntryPrice}} | Δ1h {{pct .Signal.PriceChange1h}} | OI {{pct .Signal.OIChange}}
Сила {{.Signal.StrengthScore}} ({{.Signal.StrengthGrade}}) | RSI {{printf "%.1f" .Signal.RSI}} | фаза {{.Signal.Phase}} | объем x{{printf "%.2f" .Signal.VolRatio}}
{{- if .Signal.Tags}}
Теги: {{join .Signal.Tags ", "}}{{end}}
{{- if .Signal.Funding}}
Фандинг 24ч: средний {{rate .Signal.Funding.Average}} | пик {{rate .Signal.Funding.Extreme}}{{end}}
{{- if .Signal.Zone}}
Зона OB {{price .Signal.Zone.Bottom}}–{{price .Signal.Zone.Top}} (ширина {{price .Signal.Zone.Width}}){{end}}
{{- if gt .Count 1}}
Наблюдений {{.Count}}, {{printf "%.0f" .Minutes}} мин{{end}}
{{- if not .Signal.Admissible}}
⚠️ вне допуска книги{{end}}
{{time .Signal.Timestamp}}{{end}}

{{define "oimove"}}{{if .Extreme}}🚨{{else}}📊{{end}} **OI {{pct .OIChange}}** {{.Symbol}} за 5м → {{.Kind}}
Цена {{pct .PriceChange}} | OI ${{musd .OIUSD}}
{{time .Timestamp}}{{end}}

{{define "opened"}}📥 **Вход** {{.Symbol}} {{.Direction}} по {{price .EntryPrice}} на ${{usd .Size}} ({{.StrengthGrade}}, {{.Phase}})
SL {{price .SL}} | TP1 {{price .TP1}} | TP2 {{price .TP2}}{{if gt .TP3 0.0}} | TP3 {{price .TP3}}{{end}}{{end}}

{{define "closed"}}{{reasonEmoji .Reason}} **{{.Reason}}** {{.Symbol}} {{.Direction}} {{price .EntryPrice}} → {{price .ExitPrice}} {{pct .PnLPct}} ({{susd .PnLUSD}}$, доля {{share .Fraction}}){{end}}

{{define "summary"}}📒 **Виртуальная книга**
Капитал ${{usd .Capital}} ({{pct .ReturnPct}}) | реализовано {{susd .RealizedUSD}}$
Сделок {{.Trades}}, прибыльных {{.Wins}}{{if .Trades}} ({{printf "%.0f" .WinRate}}%){{end}}
{{- range .Open}}
• {{.Symbol}} {{.Direction}} {{price .EntryPrice}}{{if .Mark}} → {{price .Mark}} {{pct .UnrealizedPct}} ({{susd .UnrealizedUSD}}$){{end}}, осталось {{share .RemainingPct}}{{end}}{{end}}
`))

func render(name string, data interface{}) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("ошибка шаблона %s: %w", name, err)
	}
	return sb.String(), nil
}

// FormatAlert текст алерта
func FormatAlert(a Alert) (string, error) { return render("alert", a) }

// FormatOIMove текст алерта по OI
func FormatOIMove(m OIMove) (string, error) { return render("oimove", m) }

// FormatOpened текст о новой позиции
func FormatOpened(p paper.Position) (string, error) { return render("opened", p) }

// FormatTrades реализации одним сообщением, по строке на каждую
func FormatTrades(trades []paper.ClosedTrade) (string, error) {
	lines := make([]string, 0, len(trades))
	for _, t := range trades {
		s, err := render("closed", t)
		if err != nil {
			return "", err
		}
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}

// FormatSummary сводка книги
func FormatSummary(s paper.Summary) (string, error) { return render("summary", s) }

// formatPrice точность зависит от величины цены
func formatPrice(v float64) string {
	a := math.Abs(v)
	switch {
	case a == 0:
		return "0"
	case a >= 1000:
		return fmt.Sprintf("%.1f", v)
	case a >= 1:
		return fmt.Sprintf("%.2f", v)
	case a >= 0.01:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}
