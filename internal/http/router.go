// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/http/handlers"
	"lastmile/internal/http/middleware"
	"lastmile/internal/infra/logger"
	"lastmile/internal/modules/matching"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/modules/route"
)

type RouterDeps struct {
	Routes   *route.Service
	Matching *matching.Service
	Pricing  *pricing.Service
	Drivers  handlers.DriverLister
	Log      logger.Logger
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	routeHandler := handlers.NewRouteHandler(deps.Routes, deps.Matching)
	api := r.Group("/api")
	api.POST("/routes", routeHandler.Create)
	api.POST("/routes/batch", routeHandler.CreateBatch)
	api.POST("/routes/validate", routeHandler.ValidateBatch)
	api.GET("/routes", routeHandler.List)
	api.GET("/routes/:id", routeHandler.Get)
	api.GET("/routes/:id/candidates", routeHandler.Candidates)
	api.GET("/routes/:id/offers", routeHandler.Offers)
	api.GET("/routes/:id/events", routeHandler.Events)
	api.POST("/routes/:id/offers", routeHandler.CreateOffer)
	api.POST("/routes/:id/reoffer", routeHandler.Reoffer)
	api.POST("/routes/:id/cancel-offer", routeHandler.CancelOffer)
	api.POST("/routes/:id/cancel", routeHandler.Cancel)
	api.POST("/routes/:id/confirm", routeHandler.Confirm)
	api.POST("/routes/:id/validate", routeHandler.Validate)

	offerHandler := handlers.NewOfferHandler(deps.Routes)
	api.POST("/offers/:id/respond", offerHandler.Respond)

	priceHandler := handlers.NewPriceHandler(deps.Pricing)
	api.GET("/price-tables", priceHandler.List)
	api.GET("/price-tables/history", priceHandler.History)
	api.POST("/price-tables", priceHandler.Publish)

	driverHandler := handlers.NewDriverHandler(deps.Drivers)
	api.GET("/drivers/compliance", driverHandler.Compliance)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics))
	}
	return r
}
