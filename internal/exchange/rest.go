package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/evdnx/gohttpcl"
)

// restClient общий GET-транспорт для площадок без SDK.
// Повторы выключены: классификацию и backoff делает FallbackClient.
type restClient struct {
	venue   string
	baseURL string
	timeout time.Duration
	http    *gohttpcl.Client
}

func newRESTClient(venue, baseURL string, timeout time.Duration) *restClient {
	return &restClient{
		venue:   venue,
		baseURL: baseURL,
		timeout: timeout,
		http: gohttpcl.New(
			gohttpcl.WithTimeout(timeout),
			gohttpcl.WithMaxRetries(0),
			gohttpcl.WithDefaultHeader("Accept", "application/json"),
		),
	}
}

// get выполняет запрос и возвращает разобранное тело.
// Сетевые ошибки и 5xx считаются повторяемыми, 4xx и мусор в теле нет.
func (r *restClient) get(ctx context.Context, op, symbol, path string, params url.Values) (*simplejson.Json, error) {
	u := r.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	if _, err := url.Parse(u); err != nil {
		return nil, NewPermanentError(r.venue, op, symbol, err)
	}

	resp, err := r.http.Get(ctx, u, r.timeout, nil)
	if err != nil {
		return nil, NewTransientError(r.venue, op, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, NewTransientError(r.venue, op, symbol, fmt.Errorf("чтение ответа: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(r.venue, op, symbol, resp.StatusCode, body)
	}

	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, NewPermanentError(r.venue, op, symbol, fmt.Errorf("%w: %v", errMalformed, err))
	}
	return js, nil
}
