package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/useqlink/internal/auth"
	"github.com/danmuck/useqlink/internal/codec"
	"github.com/danmuck/useqlink/internal/observability"
	"github.com/danmuck/useqlink/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type evalRequest struct {
	Code      string `json:"code"`
	Capture   bool   `json:"capture"`
	TimeoutMS int    `json:"timeout_ms"`
}

type channelView struct {
	Channel    int      `json:"channel"`
	Len        int      `json:"len"`
	Capacity   int      `json:"capacity"`
	Last       *float64 `json:"last"`
	HasHandler bool     `json:"has_handler"`
}

// channelSamples is the CBOR body of GET /channels/:channel.
type channelSamples struct {
	Channel int       `cbor:"channel"`
	Values  []float64 `cbor:"values"`
}

func (s *Service) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, s.cfg.ID))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.registerRoutes(r)
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// guard prefixes h with token auth when an API token is configured.
func (s *Service) guard(h gin.HandlerFunc) []gin.HandlerFunc {
	if strings.TrimSpace(s.cfg.APIToken) == "" {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{auth.Require(auth.StaticToken{Token: s.cfg.APIToken}), h}
}

func (s *Service) registerRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"bridge":  s.cfg.ID,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		state := s.session.State()
		status := http.StatusOK
		if state != session.StateConnected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     state == session.StateConnected,
			"state":     state.String(),
			"transport": s.session.Transport().String(),
			"firmware":  s.session.Firmware(),
			"bridge":    s.cfg.ID,
		})
	})

	r.POST("/connect", s.guard(func(c *gin.Context) {
		if err := s.Connect(c.Request.Context()); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, session.ErrAlreadyOpen) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "connected", "transport": s.session.Transport().String()})
	})...)

	r.POST("/disconnect", s.guard(func(c *gin.Context) {
		if err := s.Disconnect(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
	})...)

	r.POST("/eval", s.guard(s.handleEval)...)

	r.GET("/channels", func(c *gin.Context) {
		infos := s.session.Registry().Channels()
		views := make([]channelView, 0, len(infos))
		for _, info := range infos {
			v := channelView{
				Channel:    info.Channel,
				Len:        info.Len,
				Capacity:   info.Capacity,
				HasHandler: info.HasHandler,
			}
			if info.Len > 0 {
				v.Last = finite(info.Last)
			}
			views = append(views, v)
		}
		c.JSON(http.StatusOK, gin.H{"channels": views})
	})

	r.GET("/channels/:channel", s.handleChannel)

	r.GET("/console", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, gin.H{"lines": s.console.Recent(limit)})
	})

	r.GET("/events", func(c *gin.Context) {
		conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
		if err != nil {
			log.Warn().Str("component", "bridge").Err(err).Msg("websocket upgrade failed")
			return
		}
		s.hub.Serve(conn)
	})
}

func (s *Service) handleEval(c *gin.Context) {
	var req evalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if req.TimeoutMS < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout_ms"})
		return
	}

	if !req.Capture {
		if err := s.session.Send(req.Code, nil); err != nil {
			c.JSON(evalStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
		return
	}

	timeout := s.cfg.CaptureTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	reply, err := s.session.Await(ctx, req.Code)
	if err != nil {
		c.JSON(evalStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func evalStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Service) handleChannel(c *gin.Context) {
	channel, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}
	values, ok := s.session.Registry().Snapshot(channel)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	if strings.Contains(c.GetHeader("Accept"), codec.ContentType) {
		raw, err := codec.Marshal(channelSamples{Channel: channel, Values: values})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, codec.ContentType, raw)
		return
	}

	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = finite(v)
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel, "values": out})
}
