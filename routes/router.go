package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/victorjacobs/go-nilan/logging"
)

func NewRouter(ctrl Controller, unit Unit, gatherer prometheus.Gatherer, log *logging.Logger) *httprouter.Router {
	router := httprouter.New()
	router.GET("/state", State(ctrl, unit, log))
	router.GET("/history", History(ctrl, log))
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return router
}
