// Package httpserver manages server creation and api routing.
package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/internal/middleware"
	"github.com/go-petr/pet-points/internal/pointdelivery"
	"github.com/go-petr/pet-points/internal/pointevents"
	"github.com/go-petr/pet-points/internal/pointrepo"
	"github.com/go-petr/pet-points/internal/pointservice"
	"github.com/go-petr/pet-points/pkg/configpkg"
	"github.com/go-petr/pet-points/pkg/dbpkg"
	"github.com/go-petr/pet-points/pkg/keylock"
	"github.com/go-petr/pet-points/pkg/redislock"
)

// Server holds connections, handlers router and configuration.
type Server struct {
	DB      *sql.DB
	Engine  *gin.Engine
	Config  configpkg.Config
	Service *pointservice.Service

	closers []io.Closer
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// Close releases the connections opened by New in reverse order.
func (s *Server) Close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// New creates Server with the store, lock and publisher selected by config.
func New(logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	server := &Server{Config: config}

	repo, err := server.newRepo(config)
	if err != nil {
		return nil, errors.Join(err, server.Close())
	}

	locker, err := server.newLocker(config)
	if err != nil {
		return nil, errors.Join(err, server.Close())
	}

	publisher := server.newPublisher(config, logger)

	server.Service = pointservice.New(repo, locker, pointservice.WithPublisher(publisher))

	ctx := logger.WithContext(context.Background())
	if err := Seed(ctx, server.Service, config.SeedUsers); err != nil {
		return nil, errors.Join(err, server.Close())
	}

	pointHandler := pointdelivery.NewHandler(server.Service)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.POST("/point/:id", pointHandler.Open)
	engine.GET("/point/:id", pointHandler.Get)
	engine.GET("/point/:id/histories", pointHandler.History)
	engine.PATCH("/point/:id/charge", pointHandler.Charge)
	engine.PATCH("/point/:id/use", pointHandler.Use)

	server.Engine = engine

	return server, nil
}

func (s *Server) newRepo(config configpkg.Config) (pointservice.Repo, error) {
	if config.StoreDriver != configpkg.StorePostgres {
		return pointrepo.NewRepoMem(), nil
	}

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		return nil, err
	}

	s.DB = db
	s.closers = append(s.closers, db)

	return pointrepo.NewRepoPGS(db), nil
}

func (s *Server) newLocker(config configpkg.Config) (pointservice.Locker, error) {
	if config.LockDriver != configpkg.LockRedis {
		return keylock.New(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddress,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	s.closers = append(s.closers, client)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return redislock.New(client, redislock.Options{
		Prefix:     redislock.DefaultOptions().Prefix,
		Expiry:     config.LockExpiry,
		Tries:      config.LockTries,
		RetryDelay: config.LockRetryDelay,
	}), nil
}

func (s *Server) newPublisher(config configpkg.Config, logger zerolog.Logger) pointservice.Publisher {
	if len(config.KafkaBrokers) == 0 {
		return pointevents.Nop{}
	}

	p := pointevents.NewKafkaPublisher(config.KafkaBrokers, config.KafkaTopic, logger)
	s.closers = append(s.closers, p)

	return p
}

// Seed opens the given users, skipping those that already exist.
func Seed(ctx context.Context, s *pointservice.Service, userIDs []int64) error {
	l := zerolog.Ctx(ctx)

	for _, id := range userIDs {
		_, err := s.Open(ctx, id)

		switch {
		case err == nil:
			l.Info().Int64("user_id", id).Msg("user seeded")
		case errors.Is(err, domain.ErrUserAlreadyExists):
		default:
			return err
		}
	}

	return nil
}
