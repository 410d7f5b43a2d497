package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth),
	fx.Invoke(RegisterRoutes),
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	pingTimeout     = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

// Pinger is one dependency checked by the readiness probe.
type Pinger struct {
	Name string
	Ping func(ctx context.Context) error
}

type health struct {
	deps []Pinger
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB        `optional:"true"`
	Mongo *mongo.Database `optional:"true"`
	Redis *redis.Client   `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	var deps []Pinger
	if p.DB != nil {
		db := p.DB
		deps = append(deps, Pinger{Name: db.Name(), Ping: func(ctx context.Context) error {
			sql, err := db.DB()
			if err != nil {
				return err
			}
			return sql.PingContext(ctx)
		}})
	}
	if p.Mongo != nil {
		m := p.Mongo
		deps = append(deps, Pinger{Name: "mongodb", Ping: func(ctx context.Context) error {
			return m.Client().Ping(ctx, nil)
		}})
	}
	if p.Redis != nil {
		r := p.Redis
		deps = append(deps, Pinger{Name: "redis", Ping: func(ctx context.Context) error {
			return r.Ping(ctx).Err()
		}})
	}
	return New(deps...)
}

func New(deps ...Pinger) HealthService {
	return &health{deps: deps}
}

func RegisterRoutes(r *gin.Engine, h HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

// Readiness pings every dependency and answers 503 when any of them fails.
func (h *health) Readiness(c *gin.Context) {
	out := &Health{
		Status:  statusHealthy,
		Message: "OK",
		Deps:    make([]Dependency, 0, len(h.deps)),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	code := http.StatusOK
	for _, d := range h.deps {
		dep := Dependency{Name: d.Name, Status: statusHealthy, Message: "OK"}
		if err := d.Ping(ctx); err != nil {
			dep.Status = statusUnhealthy
			dep.Message = err.Error()
			out.Status = statusUnhealthy
			out.Message = "dependency unavailable"
			code = http.StatusServiceUnavailable
		}
		out.Deps = append(out.Deps, dep)
	}

	c.JSON(code, out)
}
