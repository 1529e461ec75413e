package routes

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/disruption"
)

type disruptionSummary struct {
	ID          string   `json:"id" groups:"basic"`
	Reference   string   `json:"reference,omitempty" groups:"basic"`
	Contributor string   `json:"contributor,omitempty" groups:"basic"`
	Impacts     int      `json:"impacts" groups:"basic"`
	Effects     []string `json:"effects" groups:"basic"`
}

func DisruptionsRouter(router fiber.Router, manager *disruption.Manager, now func() time.Time) {
	router.Get("/", listDisruptions(manager))
	router.Get("/:id", getDisruption(manager, now))
	router.Get("/:id/mutations", getDisruptionMutations(manager))
}

func listDisruptions(manager *disruption.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summaries := []disruptionSummary{}

		for _, registered := range manager.Disruptions() {
			summary := disruptionSummary{
				ID:          registered.ID,
				Reference:   registered.Reference,
				Contributor: registered.Contributor,
				Impacts:     len(registered.Impacts),
				Effects:     []string{},
			}
			for _, impact := range registered.Impacts {
				summary.Effects = append(summary.Effects, string(impact.Effect()))
			}
			summaries = append(summaries, summary)
		}

		return c.JSON(summaries)
	}
}

func getDisruption(manager *disruption.Manager, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathParameter(c, "id")
		if err != nil {
			return err
		}
		detailed := c.QueryBool("detailed", false)

		registered, exists := manager.Disruption(id)
		if !exists {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "Could not find Disruption matching id",
			})
		}

		groups := []string{"basic"}
		if detailed {
			groups = append(groups, "detailed")
		}

		disruptionReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: groups,
		}, registered)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Sherrif could not reduce Disruption",
			})
		}

		calendar := manager.Dataset().Calendar
		currentTime := now()

		status := map[string]ctdf.ImpactStatus{}
		for _, impact := range registered.Impacts {
			status[impact.ID] = impact.Status(calendar, currentTime)
		}

		return c.JSON(fiber.Map{
			"disruption": disruptionReduced,
			"status":     status,
		})
	}
}

func getDisruptionMutations(manager *disruption.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathParameter(c, "id")
		if err != nil {
			return err
		}

		journal, err := manager.Journal(id)
		if errors.Is(err, disruption.ErrUnknownDisruption) {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "Could not find Disruption matching id",
			})
		}

		journalReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic"},
		}, journal)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Sherrif could not reduce mutations",
			})
		}

		return c.JSON(journalReduced)
	}
}
