package disruptiontracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/database"
	"github.com/travigo/disruptions/pkg/redis_client"
)

// StartStatsServer serves queue stats, health and engine metrics until the listener fails
func StartStatsServer(listen string, engine *Engine) {
	mux := http.NewServeMux()
	mux.Handle("/realtime-stats/overview", NewStatsHandler(redis_client.QueueConnection))
	mux.Handle("/health", NewHealthHandler(engine))
	mux.Handle("/metrics", engine.Manager().Metrics().Handler())

	log.Info().Str("listen", listen).Msg("Stats server listening")
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Fatal().Err(err).Msg("Stats server failed")
	}
}

type StatsServerHandler struct {
	redisConnection rmq.Connection
}

func NewStatsHandler(connection rmq.Connection) *StatsServerHandler {
	return &StatsServerHandler{redisConnection: connection}
}

func (handler *StatsServerHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	layout := request.FormValue("layout")
	refresh := request.FormValue("refresh")

	queues, err := handler.redisConnection.GetOpenQueues()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := handler.redisConnection.CollectStats(queues)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	fmt.Fprint(writer, stats.GetHtml(layout, refresh))
}

type HealthHandler struct {
	engine *Engine
}

func NewHealthHandler(engine *Engine) *HealthHandler {
	return &HealthHandler{engine: engine}
}

func (handler *HealthHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()

	testRedis := redis_client.Client.ClientID(ctx)
	if testRedis.Err() != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(writer, testRedis.Err())

		return
	}

	if err := database.Ping(ctx); err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(writer, err)

		return
	}

	writer.WriteHeader(http.StatusOK)
	fmt.Fprintf(writer, "OK %d disruptions at version %d", handler.engine.Manager().Len(), handler.engine.Handle().Version())
}
