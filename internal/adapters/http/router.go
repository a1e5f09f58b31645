package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
)

// Deps are the services behind the routes. Engine and Gatherer are optional.
type Deps struct {
	Call     CallService
	Names    core.NameStore
	Limiter  *JoinRateLimiter
	Engine   http.Handler
	Gatherer prometheus.Gatherer
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &callHandlers{call: deps.Call, names: deps.Names, limiter: deps.Limiter}
	stream := &snapshotStream{ctx: ctx, call: deps.Call, readLimit: cfg.ReadLimit, pingPeriod: cfg.PingPeriod}

	api := r.Group("/api")

	call := api.Group("/call")
	call.GET("", h.snapshot)
	call.POST("/join", h.join)
	call.POST("/leave", h.leave)
	call.POST("/mic", h.toggle(deps.Call.SetMicEnabled))
	call.POST("/video", h.toggle(deps.Call.SetVideoEnabled))

	api.GET("/profile/name", h.getName)
	api.PUT("/profile/name", h.putName)

	api.GET("/ws/call", stream.serve)
	if deps.Engine != nil {
		api.GET("/ws/engine", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws engine endpoint hit")
			deps.Engine.ServeHTTP(c.Writer, c.Request)
		})
	}

	return r
}
