package tracker

import "time"

// Cooldown подавляет повторный алерт по символу в течение окна.
// История старше retention удаляется.
type Cooldown struct {
	window    time.Duration
	retention time.Duration
	last      map[string]time.Time
}

// NewCooldown создает фильтр поверх сохраненной истории
func NewCooldown(window, retention time.Duration, last map[string]time.Time) *Cooldown {
	if last == nil {
		last = make(map[string]time.Time)
	}
	return &Cooldown{window: window, retention: retention, last: last}
}

// Allow true, если с последнего алерта прошло не меньше окна
func (c *Cooldown) Allow(symbol string, now time.Time) bool {
	t, ok := c.last[symbol]
	return !ok || now.Sub(t) >= c.window
}

// Mark фиксирует отправку и возвращает функцию отката
func (c *Cooldown) Mark(symbol string, now time.Time) (undo func()) {
	prev, had := c.last[symbol]
	c.last[symbol] = now
	return func() {
		if had {
			c.last[symbol] = prev
		} else {
			delete(c.last, symbol)
		}
	}
}

// GC удаляет записи старше retention
func (c *Cooldown) GC(now time.Time) int {
	removed := 0
	for symbol, t := range c.last {
		if now.Sub(t) > c.retention {
			delete(c.last, symbol)
			removed++
		}
	}
	return removed
}

// Snapshot копия истории для сохранения
func (c *Cooldown) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
