package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"retail-order-service/config"
	"retail-order-service/consumers"
	"retail-order-service/controllers"
	"retail-order-service/database"
	"retail-order-service/logger"
	"retail-order-service/middlewares"
	"retail-order-service/rabbitmq"
	"retail-order-service/repositories"
	"retail-order-service/services"
)

func main() {
	cfg := config.LoadConfig()

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("database initialization failed", zap.Error(err))
	}
	defer db.Close()

	gw := database.NewGateway(db)
	productRepo := repositories.NewProductRepository(gw)
	customerRepo := repositories.NewCustomerRepository(gw)
	orderRepo := repositories.NewOrderRepository(gw)

	orderSvc := services.NewOrderService(gw, productRepo, customerRepo, orderRepo, log)
	stockSvc := services.NewStockService(productRepo, log)

	rmq, err := rabbitmq.NewRabbitMQ(cfg, log)
	if err != nil {
		log.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		log.Fatal("failed to setup rabbitmq queues", zap.Error(err))
	}

	consumer := consumers.NewOrderConsumer(orderSvc, cfg, log)
	if err := consumer.Start(rmq.Channel); err != nil {
		log.Fatal("failed to start order consumer", zap.Error(err))
	}

	orderCtl := controllers.NewOrderController(orderSvc, rmq, cfg.PaymentCheckDelay, log)
	productCtl := controllers.NewProductController(stockSvc)
	customerCtl := controllers.NewCustomerController(customerRepo, orderSvc)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST("/orders", orderCtl.Create)
		api.GET("/orders", orderCtl.List)
		api.PUT("/orders/:id/status", orderCtl.UpdateStatus)
		api.DELETE("/orders/:id", orderCtl.Delete)

		api.GET("/products", productCtl.List)
		api.GET("/products/:id", productCtl.Get)
		api.POST("/products/:id/decrement", productCtl.DecrementStock)

		api.GET("/customers", customerCtl.List)
		api.POST("/customers", customerCtl.FindOrCreate)
		api.GET("/customers/:id", customerCtl.Detail)
		api.PUT("/customers/:id", customerCtl.Update)
		api.DELETE("/customers/:id", customerCtl.Delete)
	}

	addr := ":" + cfg.ServerPort
	log.Info("retail order service starting", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
