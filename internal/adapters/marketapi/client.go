package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// Rate limits conservadores — el colaborador de mercado no documenta
	// límites, así que operamos muy por debajo de lo razonable.
	quotesRatePerSec = 10
	ordersRatePerSec = 2

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client del colaborador de acceso a mercado, con rate
// limiting y retries. Implementa ports.MarketClient.
type Client struct {
	http          *http.Client
	base          string
	quotesLimiter *rate.Limiter
	ordersLimiter *rate.Limiter
}

// NewClient crea un Client con el base URL dado.
func NewClient(base string) *Client {
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		base:          base,
		quotesLimiter: rate.NewLimiter(quotesRatePerSec, 5),
		ordersLimiter: rate.NewLimiter(ordersRatePerSec, 1),
	}
}

// quoteDTO es el wire format de una quote.
type quoteDTO struct {
	City      string  `json:"city"`
	Bracket   string  `json:"bracket"`
	YesPrice  float64 `json:"yes_price"`
	NoPrice   float64 `json:"no_price"`
	Size      float64 `json:"size"`
	Timestamp string  `json:"timestamp"`
}

// orderDTO es el wire format de una orden saliente.
type orderDTO struct {
	City     string  `json:"city"`
	Bracket  string  `json:"bracket"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// fillDTO es la confirmación devuelta por el colaborador.
type fillDTO struct {
	OrderID        string  `json:"order_id"`
	FilledQuantity float64 `json:"filled_quantity"`
	AvgPrice       float64 `json:"avg_price"`
}

// FetchQuotes devuelve las quotes actuales por (city, bracket).
// No valida coherencia — eso es responsabilidad del orquestador, que debe
// auditar las quotes malformadas bracket por bracket.
func (c *Client) FetchQuotes(ctx context.Context) ([]domain.MarketQuote, error) {
	var dtos []quoteDTO
	if err := c.get(ctx, c.quotesLimiter, c.base+"/quotes", &dtos); err != nil {
		return nil, fmt.Errorf("marketapi.FetchQuotes: %w", err)
	}

	quotes := make([]domain.MarketQuote, 0, len(dtos))
	for _, d := range dtos {
		ts, _ := time.Parse(time.RFC3339, d.Timestamp)
		quotes = append(quotes, domain.MarketQuote{
			City:      d.City,
			Bracket:   d.Bracket,
			YesPrice:  d.YesPrice,
			NoPrice:   d.NoPrice,
			Size:      d.Size,
			Timestamp: ts,
		})
	}
	return quotes, nil
}

// PlaceOrder envía una orden y devuelve la confirmación de fill.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderFill, error) {
	body := orderDTO{
		City:     req.City,
		Bracket:  req.Bracket,
		Side:     string(req.Side),
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	var fill fillDTO
	if err := c.post(ctx, c.ordersLimiter, c.base+"/orders", body, &fill); err != nil {
		return domain.OrderFill{}, fmt.Errorf("marketapi.PlaceOrder %s %s/%s: %w",
			req.Side, req.City, req.Bracket, err)
	}
	return domain.OrderFill{
		OrderID:        fill.OrderID,
		FilledQuantity: fill.FilledQuantity,
		AvgPrice:       fill.AvgPrice,
	}, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el
// contexto. Los retries están acotados — un colaborador caído es una
// condición recuperable que se reporta al ciclo, no un loop infinito.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
