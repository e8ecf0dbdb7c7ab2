// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/handlers"
	"taxihub/internal/http/middleware"
	"taxihub/internal/logger"
	"taxihub/internal/logincode"
	"taxihub/internal/modules/chat"
	"taxihub/internal/modules/filter"
	"taxihub/internal/modules/location"
	"taxihub/internal/modules/order"
	"taxihub/internal/modules/promo"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

type RouterDeps struct {
	Order      *order.Service
	Filters    *filter.Service
	Promo      *promo.Service
	Tariffs    *tariff.Store
	Sectors    *location.Store
	Users      *user.Store
	Presence   *location.Presence
	Chat       *chat.Store
	LoginCodes *logincode.Store
	CodeSender handlers.CodeSender
	JWTSecret  string
	Log        logger.ILogger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	authHandler := handlers.NewAuthHandler(deps.LoginCodes, deps.Users, deps.CodeSender, deps.JWTSecret)
	r.POST("/api/auth/request_code", authHandler.RequestCode)
	r.POST("/api/auth/verify_code", authHandler.VerifyCode)

	catalogHandler := handlers.NewCatalogHandler(deps.Tariffs, deps.Sectors)
	r.GET("/api/tariffs", catalogHandler.Tariffs)
	r.GET("/api/sectors", catalogHandler.Sectors)

	authed := r.Group("/api", middleware.Auth(deps.JWTSecret))
	authed.PUT("/me/fcm_token", authHandler.UpdateFCMToken)

	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Order)
	authed.GET("/orders/:id/chat", chatHandler.History)
	authed.POST("/orders/:id/chat", chatHandler.Send)

	orderHandler := handlers.NewOrderHandler(deps.Order)
	promoHandler := handlers.NewPromoHandler(deps.Promo)
	client := authed.Group("", middleware.RequireRole(types.RoleClient))
	client.POST("/orders", orderHandler.Create)
	client.GET("/orders", orderHandler.ListMine)
	client.GET("/orders/:id", orderHandler.Get)
	client.POST("/orders/:id/cancel", orderHandler.Cancel)
	client.POST("/promo/activate", promoHandler.Activate)

	driverHandler := handlers.NewDriverHandler(deps.Order, deps.Filters, deps.Sectors, deps.Users, deps.Presence)
	filterHandler := handlers.NewFilterHandler(deps.Filters)
	driver := authed.Group("/driver", middleware.RequireRole(types.RoleDriver))
	driver.POST("/online", driverHandler.SetOnline)
	driver.POST("/offline", driverHandler.SetOffline)
	driver.PUT("/location", driverHandler.UpdateLocation)
	driver.GET("/ether", driverHandler.Ether)
	driver.GET("/orders", driverHandler.ListMine)
	driver.POST("/orders/:id/accept", driverHandler.Accept)
	driver.POST("/orders/:id/arrive", driverHandler.Arrive)
	driver.POST("/orders/:id/start", driverHandler.Start)
	driver.POST("/orders/:id/complete", driverHandler.Complete)
	driver.POST("/orders/:id/cancel", driverHandler.Cancel)
	driver.POST("/filters", filterHandler.Create)
	driver.GET("/filters", filterHandler.List)
	driver.PUT("/filters/:id", filterHandler.Update)
	driver.PATCH("/filters/:id", filterHandler.Toggle)
	driver.DELETE("/filters/:id", filterHandler.Delete)

	dispatcherHandler := handlers.NewDispatcherHandler(deps.Order)
	dispatcher := authed.Group("/dispatcher", middleware.RequireRole(types.RoleDispatcher))
	dispatcher.GET("/orders", dispatcherHandler.Pool)
	dispatcher.POST("/orders/:id/assign", dispatcherHandler.Assign)
	dispatcher.POST("/orders/:id/cancel", dispatcherHandler.Cancel)

	return r
}
