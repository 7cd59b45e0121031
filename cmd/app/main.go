package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jwtware "github.com/gofiber/jwt/v2"

	"github.com/wichananm65/heladeria-backend/internal/admin"
	"github.com/wichananm65/heladeria-backend/internal/archive"
	"github.com/wichananm65/heladeria-backend/internal/category"
	"github.com/wichananm65/heladeria-backend/internal/config"
	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/docstore/memstore"
	"github.com/wichananm65/heladeria-backend/internal/docstore/mongostore"
	"github.com/wichananm65/heladeria-backend/internal/docstore/sqlstore"
	"github.com/wichananm65/heladeria-backend/internal/eventlog"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/metrics"
	"github.com/wichananm65/heladeria-backend/internal/order"
	"github.com/wichananm65/heladeria-backend/internal/product"
	"github.com/wichananm65/heladeria-backend/internal/pubsub"
	"github.com/wichananm65/heladeria-backend/internal/stockalert"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, events := mustOpenStore(ctx, cfg)
	defer store.Close()

	var pub pubsub.Publisher = pubsub.Nop{}
	if cfg.RedisAddr != "" {
		client := pubsub.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		pub = pubsub.NewRedisPublisher(client)
	} else {
		fmt.Println("warning: REDIS_ADDR is not set, live feed will not receive events")
	}

	adminService := mustAdmin(cfg)
	logger := eventlog.NewLogger(events, pub)
	alerts := stockalert.NewRecorder(store, pub)
	flavorService := flavor.NewService(store).WithWatcher(alerts)
	productService := product.NewService(product.NewStoreRepository(store))
	categoryService := category.NewService(category.NewStoreRepository(store), flavorService)
	if cfg.SeedCatalog {
		seed(ctx, productService, categoryService)
	}
	orderService := order.NewService(store, flavorService, logger).WithCatalog(productService)
	metricsService := metrics.NewService(order.NewRepository(store), cfg.ShopLocation)
	archiver := archive.NewArchiver(store, logger, alerts)
	autoArchiver := archive.NewAutoArchiver(archiver, orderService, cfg.AutoArchiveAfter, cfg.AutoArchiveInterval)

	if cfg.AutoArchiveEnabled {
		go autoArchiver.Run(ctx)
		log.Printf("auto-archive every %s for orders completed more than %s ago", cfg.AutoArchiveInterval, cfg.AutoArchiveAfter)
	}

	app := fiber.New(fiber.Config{Immutable: true})
	setupCORS(app, cfg.CORSOrigins)
	app.Use(checkMiddleware)

	adminHandler := admin.NewHandler(adminService)
	productHandler := product.NewHandler(productService).AllowReset(cfg.AllowResetProducts)
	categoryHandler := category.NewHandler(categoryService)
	metricsHandler := metrics.NewHandler(metricsService)
	flavorHandler := flavor.NewHandler(flavorService)
	orderHandler := order.NewHandler(orderService)
	archiveHandler := archive.NewHandler(archiver, autoArchiver)
	eventHandler := eventlog.NewHandler(logger)
	alertHandler := stockalert.NewHandler(alerts)

	adminHandler.RegisterPublicRoutes(app)
	productHandler.RegisterPublicRoutes(app)
	categoryHandler.RegisterPublicRoutes(app)
	metricsHandler.RegisterPublicRoutes(app)
	flavorHandler.RegisterPublicRoutes(app)
	orderHandler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		// storefront routes stay public
		Filter: func(c *fiber.Ctx) bool {
			return !strings.HasPrefix(c.Path(), "/api/v1/admin")
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	}))
	app.Use("/api/v1/admin", admin.RequireAdmin)

	flavorHandler.RegisterProtectedRoutes(app)
	productHandler.RegisterProtectedRoutes(app)
	categoryHandler.RegisterProtectedRoutes(app)
	metricsHandler.RegisterProtectedRoutes(app)
	// archive routes are more specific than the order ones
	archiveHandler.RegisterProtectedRoutes(app)
	eventHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	alertHandler.RegisterProtectedRoutes(app)

	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("warning: shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (store: %s)", cfg.Addr, cfg.DocstoreDriver)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// seed fills an empty catalog. Failures only warn, the shop can run without it.
func seed(ctx context.Context, products *product.Service, categories *category.Service) {
	if ok, err := products.SeedIfEmpty(ctx); err != nil {
		log.Printf("warning: could not seed products: %v", err)
	} else if ok {
		log.Println("seeded the default product catalog")
	}
	if ok, err := categories.SeedIfEmpty(ctx); err != nil {
		log.Printf("warning: could not seed categories: %v", err)
	} else if ok {
		log.Println("seeded the default flavor categories")
	}
}

func setupCORS(app *fiber.App, origins []string) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}

// mustOpenStore picks the document store and the event repository that goes
// with it.
func mustOpenStore(ctx context.Context, cfg config.Config) (docstore.Store, eventlog.Repository) {
	switch cfg.DocstoreDriver {
	case "memory":
		fmt.Println("warning: using the in-memory store, data is lost on restart")
		store := memstore.New(memstore.WithMaxAttempts(cfg.TxMaxAttempts))
		return store, eventlog.NewStoreRepository(store)

	case "postgres", "pgx":
		store, err := sqlstore.Open(ctx, "pgx", mustEnv("DATABASE_URL", cfg.DatabaseURL))
		if err != nil {
			panic(err)
		}
		store.SetMaxAttempts(cfg.TxMaxAttempts)
		events := eventlog.NewPostgresRepository(store.DB().DB)
		if err := events.Migrate(ctx); err != nil {
			panic(err)
		}
		return store, events

	case "sqlite3", "sqlite":
		store, err := sqlstore.Open(ctx, "sqlite3", mustEnv("DATABASE_URL", cfg.DatabaseURL))
		if err != nil {
			panic(err)
		}
		store.SetMaxAttempts(cfg.TxMaxAttempts)
		return store, eventlog.NewStoreRepository(store)

	case "mongo", "mongodb":
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			panic(err)
		}
		store.SetMaxAttempts(cfg.TxMaxAttempts)
		return store, eventlog.NewStoreRepository(store)
	}
	panic(fmt.Sprintf("unknown DOCSTORE_DRIVER %q", cfg.DocstoreDriver))
}

func mustEnv(name, value string) string {
	if value == "" {
		panic(name + " is not set")
	}
	return value
}

func mustAdmin(cfg config.Config) *admin.Service {
	secret := mustEnv("JWT_SECRET", cfg.JWTSecret)
	hash := cfg.AdminPasswordHash
	if hash == "" && cfg.AdminPassword != "" {
		var err error
		if hash, err = admin.HashPassword(cfg.AdminPassword); err != nil {
			panic(err)
		}
	}
	if cfg.AdminEmail == "" || hash == "" {
		fmt.Println("warning: ADMIN_EMAIL or admin password not set, sign-in is disabled")
	}
	return admin.NewService(cfg.AdminEmail, hash, []byte(secret))
}

func checkMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	fmt.Printf("URL = %s, Method = %s, Status = %d, Took = %v\n", c.OriginalURL(), c.Method(), c.Response().StatusCode(), time.Since(start))
	return err
}
