package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/forecast-display/internal/clock"
	"github.com/i474232898/forecast-display/internal/diag"
	"github.com/i474232898/forecast-display/internal/display"
	"github.com/i474232898/forecast-display/internal/forecast"
	"github.com/i474232898/forecast-display/internal/store"
)

var validate = validator.New()

// ClockReader is the read side of the clock model.
type ClockReader interface {
	State() (clock.State, bool)
	Format(now time.Time) (clock.View, error)
}

// Deps are the read-only views the API serves.
type Deps struct {
	Series *store.SeriesBuffer
	Clock  ClockReader
	Diag   *diag.Stream
	Now    func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	v1 := app.Group("/api/v1")

	v1.Get("/series", func(c *fiber.Ctx) error {
		snap := deps.Series.Snapshot()
		headline := display.HeadlinePlaceholder
		if snap.HasLatest() {
			headline = snap.Latest.Headline()
		}

		readings := snap.Readings
		if readings == nil {
			readings = forecast.Series{}
		}

		resp := fiber.Map{
			"readings": readings,
			"capacity": snap.Capacity,
			"version":  snap.Version,
			"headline": headline,
		}
		if !snap.UpdatedAt.IsZero() {
			resp["updatedAt"] = snap.UpdatedAt
		}
		return c.JSON(resp)
	})

	v1.Get("/clock", func(c *fiber.Ctx) error {
		view, err := deps.Clock.Format(deps.Now())
		if err != nil {
			if errors.Is(err, clock.ErrTimeUnset) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "local time unavailable")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to format local time")
		}

		st, _ := deps.Clock.State()
		return c.JSON(fiber.Map{
			"time":             view.TimeText,
			"date":             view.DateText,
			"utcOffsetSeconds": st.UTCOffsetSeconds,
			"isDaylightSaving": st.IsDaylightSaving,
			"syncedAt":         st.SyncedAt,
		})
	})

	v1.Get("/diagnostics", func(c *fiber.Ctx) error {
		var q diagnosticsQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var events []diag.Event
		switch {
		case q.Since > 0:
			events = deps.Diag.Since(q.Since)
		default:
			events = deps.Diag.Last(q.Limit)
		}
		if events == nil {
			events = []diag.Event{}
		}
		return c.JSON(fiber.Map{"events": events})
	})

	v1.Get("/chart", func(c *fiber.Ctx) error {
		series := deps.Series.Current()
		if len(series) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no forecast data yet")
		}
		c.Type("html", "utf-8")
		return display.RenderChart(c, series)
	})
}

// diagnosticsQuery holds query parameters for the diagnostics endpoint.
type diagnosticsQuery struct {
	Limit int    `query:"limit" validate:"gte=0,lte=1000"`
	Since uint64 `query:"since"`
}
