package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/disruptions/pkg/api/routes"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/disruption"
)

// NewApp builds the introspection API over a manager and the snapshots it publishes
func NewApp(manager *disruption.Manager, handle *dataset.Handle, now func() time.Time) *fiber.App {
	if now == nil {
		now = time.Now
	}

	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger(handle))

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion(handle))

	routes.DisruptionsRouter(group.Group("/disruptions"), manager, now)
	routes.ObjectsRouter(group.Group("/objects"), manager, now)
	routes.TripsRouter(group.Group("/trips"), handle, now)

	return webApp
}

func SetupServer(listen string, manager *disruption.Manager, handle *dataset.Handle) error {
	return NewApp(manager, handle, nil).Listen(listen)
}
