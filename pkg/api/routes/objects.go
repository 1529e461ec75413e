package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/disruption"
)

var objectKinds = map[string]ctdf.PtObjKind{
	"network":    ctdf.PtObjNetwork,
	"line":       ctdf.PtObjLine,
	"route":      ctdf.PtObjRoute,
	"stop_area":  ctdf.PtObjStopArea,
	"stop_point": ctdf.PtObjStopPoint,
	"trip":       ctdf.PtObjTrip,
}

func ObjectsRouter(router fiber.Router, manager *disruption.Manager, now func() time.Time) {
	router.Get("/:kind/:id/impacts", getObjectImpacts(manager, now))
}

func getObjectImpacts(manager *disruption.Manager, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, exists := objectKinds[c.Params("kind")]
		if !exists {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter kind should be one of network, line, route, stop_area, stop_point or trip",
			})
		}
		id, err := pathParameter(c, "id")
		if err != nil {
			return err
		}
		activeOnly := c.QueryBool("active", false)

		impacts := []string{}
		calendar := manager.Dataset().Calendar
		currentTime := now()

		for _, impactID := range manager.ImpactsOn(ctdf.PtObjKey{Kind: kind, URI: id}) {
			if activeOnly {
				impact, _, exists := manager.Impact(impactID)
				if !exists || impact.Status(calendar, currentTime) != ctdf.ImpactStatusActive {
					continue
				}
			}
			impacts = append(impacts, impactID)
		}

		return c.JSON(fiber.Map{
			"object":  ctdf.PtObjKey{Kind: kind, URI: id}.String(),
			"impacts": impacts,
		})
	}
}
