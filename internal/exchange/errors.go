package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind категория ошибки получения данных
type ErrorKind string

const (
	// KindTransient сеть, 5xx, таймаут: повторяем, затем резервная площадка
	KindTransient ErrorKind = "transient"
	// KindPermanent 4xx, неверный формат ответа: пропускаем символ в этом цикле
	KindPermanent ErrorKind = "permanent"
)

// ErrNoData площадки вернули пустой ответ, это отсутствие наблюдения, а не сбой
var ErrNoData = errors.New("нет данных")

// FetchError ошибка запроса к площадке
type FetchError struct {
	Kind       ErrorKind
	Venue      string
	Op         string
	Symbol     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s/%s", e.Kind, e.Venue, e.Op)
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewTransientError создает повторяемую ошибку
func NewTransientError(venue, op, symbol string, err error) *FetchError {
	return &FetchError{Kind: KindTransient, Venue: venue, Op: op, Symbol: symbol, Err: err}
}

// NewPermanentError создает неповторяемую ошибку
func NewPermanentError(venue, op, symbol string, err error) *FetchError {
	return &FetchError{Kind: KindPermanent, Venue: venue, Op: op, Symbol: symbol, Err: err}
}

// NewHTTPError классифицирует ответ по коду статуса
func NewHTTPError(venue, op, symbol string, status int, body []byte) *FetchError {
	kind := KindPermanent
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		kind = KindTransient
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return &FetchError{
		Kind:       kind,
		Venue:      venue,
		Op:         op,
		Symbol:     symbol,
		StatusCode: status,
		Err:        fmt.Errorf("ответ площадки: %s", snippet),
	}
}

// IsTransient проверяет, можно ли повторить запрос
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTransient
}

// IsPermanent проверяет, что символ нужно пропустить в этом цикле
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindPermanent
}
