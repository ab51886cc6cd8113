package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/local-weather/internal/agent"
	"github.com/i474232898/local-weather/internal/sink"
	"github.com/i474232898/local-weather/internal/weather"
)

var validate = validator.New()

// Controller is the part of the agent the API drives.
type Controller interface {
	Status() agent.Status
	SetSource(providerID, apiKey string) error
	SetQueryInterval(interval int64, unit time.Duration) error
	QueryInterval() time.Duration
}

// LatestReader returns the most recent emitted record.
type LatestReader interface {
	Latest(ctx context.Context) (weather.Record, error)
}

// HistoryReader returns the records queried within a time range.
type HistoryReader interface {
	Range(from, to time.Time) ([]weather.Record, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, ctrl Controller, latest LatestReader, history HistoryReader, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "local-weather",
			"agent":   ctrl.Status(),
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather/latest", func(c *fiber.Ctx) error {
		if latest == nil {
			return fiber.NewError(fiber.StatusNotFound, "no weather record available")
		}
		rec, err := latest.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, sink.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather record available")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather record")
		}
		return c.JSON(rec)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if history == nil {
			return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
		}

		records, err := history.Range(req.From, req.To)
		if err != nil {
			if errors.Is(err, sink.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"from":    req.From,
			"to":      req.To,
			"records": records,
		})
	})

	v1.Put("/source", func(c *fiber.Ctx) error {
		var req sourceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := ctrl.SetSource(req.Provider, req.APIKey); err != nil {
			if errors.Is(err, weather.ErrUnrecognizedProvider) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to configure weather provider")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/interval", func(c *fiber.Ctx) error {
		return c.JSON(intervalResponse{Seconds: int64(ctrl.QueryInterval() / time.Second)})
	})

	v1.Put("/interval", func(c *fiber.Ctx) error {
		var req intervalRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := ctrl.SetQueryInterval(req.Seconds, time.Second); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

type sourceRequest struct {
	Provider string `json:"provider" validate:"required"`
	APIKey   string `json:"apiKey"`
}

type intervalRequest struct {
	Seconds int64 `json:"seconds" validate:"gt=0,lte=31536000"`
}

type intervalResponse struct {
	Seconds int64 `json:"seconds"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
