package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/order-service/internal/adapter/handler"
	"github.com/rl1809/order-service/internal/adapter/handler/pb"
	"github.com/rl1809/order-service/internal/adapter/messaging"
	"github.com/rl1809/order-service/internal/adapter/storage"
	"github.com/rl1809/order-service/internal/config"
	"github.com/rl1809/order-service/internal/core/domain"
	"github.com/rl1809/order-service/internal/core/service"
	"github.com/rl1809/order-service/internal/port"
	"github.com/rl1809/order-service/internal/telemetry"
)

type backend struct {
	customers port.CustomerRepository
	products  port.ProductRepository
	orders    port.OrderRepository
	tx        port.Transactor
	close     func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	logger := config.SetupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.close()

	guard, closeGuard, err := openGuard(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeGuard()

	serviceOpts := []service.Option{
		service.WithIdempotencyGuard(guard),
		service.WithLogger(logger),
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close rabbitmq", "error", err)
			}
		}()

		dispatcher := messaging.NewDispatcher(publisher,
			messaging.WithWorkers(cfg.Events.Workers),
			messaging.WithQueueSize(cfg.Events.QueueSize),
			messaging.WithDispatcherLogger(logger),
		)
		// runs before the publisher is closed so queued events still go out
		defer dispatcher.Close()

		serviceOpts = append(serviceOpts, service.WithEventPublisher(dispatcher))
	}

	orderService := service.NewOrderService(store.customers, store.products, store.orders, store.tx, serviceOpts...)

	// gRPC server
	grpcServer := grpc.NewServer()
	pb.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService))

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// HTTP server
	router := handler.NewRouter(handler.NewHTTPHandler(orderService), logger, cors.Options{
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.Server.CORS.ExposedHeaders,
		AllowCredentials: cfg.Server.CORS.AllowCredentials,
		MaxAge:           cfg.Server.CORS.MaxAge,
	}, cfg.Server.RequestTimeout)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", lis.Addr().String(), "content_subtype", pb.CodecName)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		return nil
	})

	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (backend, error) {
	switch cfg.Driver {
	case config.StorageMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return backend{}, fmt.Errorf("failed to connect mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return backend{}, fmt.Errorf("failed to ping mysql: %w", err)
		}
		if err := storage.Migrate(ctx, goose.DialectMySQL, db); err != nil {
			db.Close()
			return backend{}, err
		}
		slog.Info("connected to mysql")

		adapter := storage.NewMySQLAdapter(db)
		return backend{
			customers: adapter.Customers(),
			products:  adapter.Products(),
			orders:    adapter.Orders(),
			tx:        adapter,
			close:     func() { db.Close() },
		}, nil

	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return backend{}, fmt.Errorf("failed to connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("failed to ping postgres: %w", err)
		}

		db := stdlib.OpenDBFromPool(pool)
		err = storage.Migrate(ctx, goose.DialectPostgres, db)
		db.Close()
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		slog.Info("connected to postgres")

		adapter := storage.NewPostgresAdapter(pool)
		return backend{
			customers: adapter.Customers(),
			products:  adapter.Products(),
			orders:    adapter.Orders(),
			tx:        adapter,
			close:     pool.Close,
		}, nil

	default:
		store := storage.NewMemoryStore()
		if cfg.Seed {
			seedCatalog(store)
		}
		slog.Info("using in-memory store", "seeded", cfg.Seed)

		return backend{
			customers: store.Customers(),
			products:  store.Products(),
			orders:    store.Orders(),
			tx:        store,
			close:     func() {},
		}, nil
	}
}

func openGuard(ctx context.Context, cfg config.RedisConfig) (port.IdempotencyGuard, func(), error) {
	if cfg.Addr == "" {
		return storage.NewMemoryIdempotencyGuard(cfg.IdempotencyTTL), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	slog.Info("connected to redis")

	return storage.NewRedisIdempotencyGuard(rdb, cfg.IdempotencyTTL), func() { rdb.Close() }, nil
}

// seedCatalog gives a fresh in-memory store something to order.
func seedCatalog(store *storage.MemoryStore) {
	store.AddCustomer(domain.Customer{ID: "customer-1", Name: "Demo Customer", Email: "demo@example.com"})

	for _, p := range []struct {
		id, name, price string
		stock           int
	}{
		{"iphone-15", "iPhone 15", "799.00", 100},
		{"airpods-pro", "AirPods Pro", "249.00", 50},
		{"usb-c-cable", "USB-C Cable", "19.00", 500},
	} {
		price, err := domain.NewMoney(p.price, "USD")
		if err != nil {
			panic(err)
		}
		store.AddProduct(domain.Product{ID: p.id, Name: p.name, AvailableQuantity: p.stock, Price: price})
	}
}
