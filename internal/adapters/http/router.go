package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/adapters/signal"
	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

const (
	sessionName   = "ParleySessions"
	sessionToken  = "token"
	ctxCredential = "credential"
	ctxUser       = "user"
)

// CredentialMiddleware finds the bearer credential in the Authorization
// header, the token query parameter or the cookie session, in that order.
func CredentialMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if credential == "" {
			credential = c.Query("token")
		}
		if credential == "" {
			if v, ok := sessions.Default(c).Get(sessionToken).(string); ok {
				credential = v
			}
		}
		c.Set(ctxCredential, credential)
		c.Next()
	}
}

// RequireUser rejects requests whose credential does not authenticate.
func RequireUser(auth core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request.Context(), c.GetString(ctxCredential))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth_failed"})
			return
		}
		c.Set(ctxUser, *user)
		c.Next()
	}
}

type Server struct {
	Orch   *orch.Orchestrator
	Auth   core.Authenticator
	Signal *signal.SignalWSController
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, auth core.Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		Orch: o,
		Auth: auth,
		Signal: signal.NewSignalWSController(o, signal.Options{
			ReadLimit:    cfg.ReadLimit,
			PingPeriod:   cfg.PingPeriod,
			PongWait:     cfg.PongWait,
			WriteWait:    cfg.WriteWait,
			SendBuffer:   cfg.SendBuffer,
			RateLimit:    cfg.RateLimit,
			RateInterval: cfg.RateInterval,

			AllowedOrigins: cfg.AllowedOrigins,
		}),
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(CredentialMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/up", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": o.Registry.Count()})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.POST("/session", srv.createSession)
	api.DELETE("/session", srv.deleteSession)

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		srv.Signal.HandleSignal(ctx, c.Writer, c.Request, c.GetString(ctxCredential))
	})

	authed := api.Group("", RequireUser(auth))
	authed.GET("/channels", srv.listChannels)
	authed.GET("/rooms", srv.listRooms)
	authed.GET("/online", srv.listOnline)

	return r
}

type sessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// createSession checks a token and keeps it in the cookie session so the
// browser can open the websocket without exposing it in the URL.
func (s *Server) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid token"})
		return
	}
	user, err := s.Auth.Authenticate(c.Request.Context(), req.Token)
	if err != nil {
		log.Info().Err(err).Str("module", "adapters.http").Msg("session login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_failed"})
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionToken, req.Token)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save session"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteSession(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("clear session")
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listChannels(c *gin.Context) {
	var t domain.ChannelType
	if q := c.Query("type"); q != "" {
		parsed, err := domain.ParseChannelType(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t = parsed
	}
	channels, err := s.Orch.Store.ListChannels(c.Request.Context(), t)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list channels")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.Orch.VoiceRoomList(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list rooms")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) listOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.Orch.Presence.Snapshot()})
}
