package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
	iso8601 "github.com/senseyeio/duration"
)

const maxDayRange = 366

type tripStop struct {
	Order          uint32 `json:"order" groups:"basic"`
	StopPoint      string `json:"stop_point" groups:"basic"`
	Arrival        string `json:"arrival" groups:"basic"`
	Departure      string `json:"departure" groups:"basic"`
	PickupAllowed  bool   `json:"pickup_allowed" groups:"detailed"`
	DropoffAllowed bool   `json:"dropoff_allowed" groups:"detailed"`
}

type tripVariant struct {
	URI            string     `json:"uri" groups:"basic"`
	IsAdapted      bool       `json:"is_adapted" groups:"basic"`
	BasePattern    string     `json:"base_pattern" groups:"basic"`
	AdaptedPattern string     `json:"adapted_pattern" groups:"basic"`
	CausingImpacts []string   `json:"causing_impacts" groups:"basic"`
	Stops          []tripStop `json:"stops" groups:"detailed"`
}

type dayOwner struct {
	Date       string          `json:"date"`
	ServiceDay ctdf.ServiceDay `json:"service_day"`
	Trip       string          `json:"trip,omitempty"`
}

func TripsRouter(router fiber.Router, handle *dataset.Handle, now func() time.Time) {
	router.Get("/:uri/variants", getTripVariants(handle))
	router.Get("/:uri/days", getTripDays(handle, now))
}

func getTripVariants(handle *dataset.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uri, err := pathParameter(c, "uri")
		if err != nil {
			return err
		}
		detailed := c.QueryBool("detailed", true)

		ds := handle.Current()
		trip, exists := ds.TripByURI(uri)
		if !exists {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "Could not find Trip matching uri",
			})
		}

		variants := []tripVariant{}
		for _, variant := range ds.Variants(trip.MetaTrip) {
			view := tripVariant{
				URI:            variant.URI,
				IsAdapted:      variant.IsAdapted,
				BasePattern:    ds.Patterns.Days(variant.BasePattern).Format(ds.Days),
				AdaptedPattern: ds.Patterns.Days(variant.AdaptedPattern).Format(ds.Days),
				CausingImpacts: variant.CausingImpacts.Sorted(),
			}
			for _, stopTime := range variant.StopTimes {
				view.Stops = append(view.Stops, tripStop{
					Order:          stopTime.Order,
					StopPoint:      ds.StopPointURI(stopTime.StopPoint),
					Arrival:        ctdf.FormatTimeOfDay(stopTime.Arrival),
					Departure:      ctdf.FormatTimeOfDay(stopTime.Departure),
					PickupAllowed:  stopTime.PickupAllowed,
					DropoffAllowed: stopTime.DropoffAllowed,
				})
			}
			variants = append(variants, view)
		}

		groups := []string{"basic"}
		if detailed {
			groups = append(groups, "detailed")
		}

		variantsReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: groups,
		}, variants)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Sherrif could not reduce Trip variants",
			})
		}

		return c.JSON(variantsReduced)
	}
}

func getTripDays(handle *dataset.Handle, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uri, err := pathParameter(c, "uri")
		if err != nil {
			return err
		}

		ds := handle.Current()
		trip, exists := ds.TripByURI(uri)
		if !exists {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "Could not find Trip matching uri",
			})
		}

		location := ds.Calendar.Location
		if location == nil {
			location = time.UTC
		}

		var from time.Time
		if fromString := c.Query("from"); fromString == "" {
			from = now().In(location)
		} else {
			from, err = time.ParseInLocation("2006-01-02", fromString, location)
			if err != nil {
				c.SendStatus(fiber.StatusBadRequest)
				return c.JSON(fiber.Map{
					"error": "Parameter from should be a YYYY-MM-DD date",
				})
			}
		}

		window, err := iso8601.ParseISO8601(c.Query("duration", "P7D"))
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter duration should be an ISO8601 duration",
			})
		}

		firstDay := ds.Calendar.DayOf(from)
		lastDay := ds.Calendar.DayOf(window.Shift(from))
		if lastDay-firstDay > maxDayRange {
			lastDay = firstDay + maxDayRange
		}

		days := []dayOwner{}
		for day := firstDay; day < lastDay; day++ {
			if day < 0 || int(day) >= ds.Days {
				continue
			}

			owner := dayOwner{
				Date:       ds.Calendar.Date(day).Format("2006-01-02"),
				ServiceDay: day,
			}
			if variant := ds.Owner(trip.MetaTrip, day); variant != nil {
				owner.Trip = variant.URI
			}
			days = append(days, owner)
		}

		return c.JSON(days)
	}
}
