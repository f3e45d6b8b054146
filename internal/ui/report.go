// Package ui выводит состояние книги, трекеров и последних логов в терминал
package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/internal/tracker"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// maxLogLines сколько последних строк лога показывать
const maxLogLines = 50

// Screen собирает секции в одну рамку с заголовком
func Screen(now time.Time, sections ...string) string {
	parts := []string{titleStyle.Render("PerpSentry · " + now.UTC().Format("2006-01-02 15:04 UTC"))}
	for _, s := range sections {
		parts = append(parts, "", s)
	}
	parts = append(parts, "", footerStyle.Render("perpsentry report · perpsentry close <symbol> · perpsentry reset"))
	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func section(header string, lines []string) string {
	if len(lines) == 0 {
		lines = []string{"  нет данных"}
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(header),
		strings.Join(lines, "\n"),
	))
}

func signed(v float64) string {
	style := lipgloss.NewStyle().Foreground(successColor)
	if v < 0 {
		style = lipgloss.NewStyle().Foreground(errorColor)
	}
	return style.Render(fmt.Sprintf("%+.2f", v))
}

// RenderBook сводка виртуальной книги
func RenderBook(sum paper.Summary) string {
	lines := []string{
		fmt.Sprintf("  Капитал: %.2f (старт %.2f, %s%%)", sum.Capital, sum.StartCapital, signed(sum.ReturnPct())),
		fmt.Sprintf("  Реализовано: %s$ | сделок %d, прибыльных %d (%.0f%%)", signed(sum.RealizedUSD), sum.Trades, sum.Wins, sum.WinRate),
	}

	if len(sum.ByReason) > 0 {
		reasons := make([]string, 0, len(sum.ByReason))
		for r, n := range sum.ByReason {
			reasons = append(reasons, fmt.Sprintf("%s=%d", r, n))
		}
		sort.Strings(reasons)
		lines = append(lines, "  Выходы: "+strings.Join(reasons, " "))
	}

	for _, p := range sum.Open {
		line := fmt.Sprintf("  %-10s %-5s вход %-12g SL %-12g осталось %3.0f%%", p.Symbol, p.Direction, p.EntryPrice, p.SL, p.RemainingPct*100)
		if p.Mark > 0 {
			line += fmt.Sprintf(" | %g → %s%% (%s$)", p.Mark, signed(p.UnrealizedPct), signed(p.UnrealizedUSD))
		}
		lines = append(lines, line)
	}
	return section("ВИРТУАЛЬНАЯ КНИГА", lines)
}

func kindStyle(k models.SignalKind) lipgloss.Style {
	switch k.Normalize() {
	case models.KindLong:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.KindShort:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(warningColor)
	}
}

// RenderTracker активные записи трекера конвейера, самые свежие сверху
func RenderTracker(pipeline string, entries map[string]tracker.Entry) string {
	symbols := make([]string, 0, len(entries))
	for s := range entries {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		a, b := entries[symbols[i]], entries[symbols[j]]
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return symbols[i] < symbols[j]
	})

	lines := make([]string, 0, len(symbols))
	for _, s := range symbols {
		e := entries[s]
		lines = append(lines, fmt.Sprintf("  %-10s %s x%d %.0f мин, оценка %s (пик %s), OI %+.2f%%",
			s, kindStyle(e.Kind).Render(string(e.Kind)), e.Count, e.DurationMinutes, e.CurrentGrade, e.PeakGrade, e.CurrentOI))
	}
	return section("ТРЕКЕР "+strings.ToUpper(pipeline), lines)
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// TailLogs последние строки JSON-лога в читаемом виде; нет файла - нет строк
func TailLogs(path string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = maxLogLines
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > limit {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)
	level = ansiRegex.ReplaceAllString(level, "")

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.000Z07:00", ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k != "level" && k != "ts" && k != "msg" && k != "caller" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s", timestamp, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " (%s: %v)", k, entry[k])
	}
	return sb.String()
}

// RenderLogs секция логов с подсветкой по уровню
func RenderLogs(logs []string) string {
	lines := make([]string, 0, len(logs))
	for _, log := range logs {
		switch {
		case strings.Contains(log, "[ERROR]"):
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		case strings.Contains(log, "[WARN]"):
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		case strings.Contains(log, "[INFO]"):
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		case strings.Contains(log, "[DEBUG]"):
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}
		lines = append(lines, "  "+log)
	}
	return section("ЛОГИ", lines)
}
