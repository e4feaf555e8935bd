// Package http serves the local inspector: a small JSON surface a UI
// process uses to read client state and issue commands.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/app/link"
	"github.com/dkeye/watchsync/internal/app/orch"
	"github.com/dkeye/watchsync/internal/app/outbound"
	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
)

// Controller is the slice of the orchestrator the inspector drives.
type Controller interface {
	View(ctx context.Context) (orch.View, error)
	SendChat(ctx context.Context, text string) error
	RequestSeat(ctx context.Context, seat domain.SeatID) error
	RequestSwap(ctx context.Context, target domain.UserID) (string, error)
	RespondSwap(ctx context.Context, requester domain.UserID, accept bool) error
	SendPlayback(ctx context.Context, mediaRef string, play bool, seekSeconds float64) error
	SendReaction(ctx context.Context, emoji string) error
	SendBinary(ctx context.Context, chunk []byte) error
	EndSession(ctx context.Context) error
}

// MediaNegotiator negotiates the voice connection, trickle ICE included.
type MediaNegotiator interface {
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	AddICECandidate(ci webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
}

type Options struct {
	Mode     string
	Gatherer prometheus.Gatherer
	Media    MediaNegotiator
	// MaxChunkBytes caps POST /api/media/chunk bodies before they reach the queue.
	MaxChunkBytes int64
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// candidates collects local ICE candidates until the UI polls them.
type candidates struct {
	mu   sync.Mutex
	list []webrtc.ICECandidateInit
}

func (c *candidates) add(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, ci)
}

func (c *candidates) snapshot() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.list)
}

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

type swapRequest struct {
	TargetID domain.UserID `json:"target_id" binding:"required"`
}

type playbackRequest struct {
	MediaID string  `json:"media_id" binding:"required"`
	Play    bool    `json:"play"`
	Seek    float64 `json:"seek_time" binding:"gte=0"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func SetupRouter(ctrl Controller, opts Options) *gin.Engine {
	if opts.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if opts.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}

	api := r.Group("/api")

	api.GET("/session", func(c *gin.Context) {
		v, ok := view(c, ctrl)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"phase":      v.Phase,
			"connection": v.Connection,
			"attempt":    v.Attempt,
			"snapshot":   v.Snapshot,
			"playback":   v.Playback,
			"queue":      gin.H{"depth": v.QueueDepth, "cap": v.QueueCap},
			"mux":        v.Mux,
		})
	})

	api.GET("/seats", func(c *gin.Context) {
		v, ok := view(c, ctrl)
		if !ok {
			return
		}
		seats := make(map[string]domain.SeatID, len(v.Seats))
		for u, s := range v.Seats {
			seats[u.String()] = s
		}
		c.JSON(http.StatusOK, gin.H{"seats": seats})
	})

	api.GET("/route", func(c *gin.Context) {
		v, ok := view(c, ctrl)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"scope":   v.Route.Scope.String(),
			"row":     v.Route.Row,
			"audible": v.Audible,
		})
	})

	api.POST("/session/end", func(c *gin.Context) {
		respond(c, http.StatusAccepted, ctrl.EndSession(c.Request.Context()), gin.H{"status": "ending"})
	})

	api.POST("/chat", func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
			return
		}
		respond(c, http.StatusAccepted, ctrl.SendChat(c.Request.Context(), req.Text), nil)
	})

	api.POST("/seats/:seat", func(c *gin.Context) {
		err := ctrl.RequestSeat(c.Request.Context(), domain.SeatID(c.Param("seat")))
		respond(c, http.StatusAccepted, err, nil)
	})

	api.POST("/swaps", func(c *gin.Context) {
		var req swapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid target_id"})
			return
		}
		id, err := ctrl.RequestSwap(c.Request.Context(), req.TargetID)
		respond(c, http.StatusAccepted, err, gin.H{"request_id": id})
	})

	api.POST("/swaps/:requester/:answer", func(c *gin.Context) {
		requester, err := domain.ParseUserID(c.Param("requester"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid requester"})
			return
		}
		var accept bool
		switch c.Param("answer") {
		case "accept":
			accept = true
		case "decline":
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown answer"})
			return
		}
		respond(c, http.StatusAccepted, ctrl.RespondSwap(c.Request.Context(), requester, accept), nil)
	})

	api.POST("/playback", func(c *gin.Context) {
		var req playbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playback command"})
			return
		}
		respond(c, http.StatusAccepted, ctrl.SendPlayback(c.Request.Context(), req.MediaID, req.Play, req.Seek), nil)
	})

	api.POST("/reactions", func(c *gin.Context) {
		var req reactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing emoji"})
			return
		}
		respond(c, http.StatusAccepted, ctrl.SendReaction(c.Request.Context(), req.Emoji), nil)
	})

	api.POST("/media/chunk", func(c *gin.Context) {
		body := io.Reader(c.Request.Body)
		if opts.MaxChunkBytes > 0 {
			// one extra byte lets the queue see the chunk is oversized
			body = io.LimitReader(body, opts.MaxChunkBytes+1)
		}
		chunk, err := io.ReadAll(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		respond(c, http.StatusAccepted, ctrl.SendBinary(c.Request.Context(), chunk), gin.H{"bytes": len(chunk)})
	})

	if opts.Media != nil {
		api.POST("/media/offer", func(c *gin.Context) {
			var offer webrtc.SessionDescription
			if err := c.ShouldBindJSON(&offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer"})
				return
			}
			answer, err := opts.Media.ApplyOfferAndCreateAnswer(offer)
			if err != nil {
				log.Error().Str("module", "adapters.http").Err(err).Msg("media negotiation failed")
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, answer)
		})

		local := &candidates{}
		opts.Media.OnICECandidate(local.add)

		api.POST("/media/candidate", func(c *gin.Context) {
			var ci webrtc.ICECandidateInit
			if err := c.ShouldBindJSON(&ci); err != nil || ci.Candidate == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate"})
				return
			}
			if err := opts.Media.AddICECandidate(ci); err != nil {
				log.Warn().Str("module", "adapters.http").Err(err).Msg("remote candidate rejected")
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "added"})
		})

		api.GET("/media/candidates", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"candidates": local.snapshot()})
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", opts.Mode).Msg("router setup")
	return r
}

func view(c *gin.Context, ctrl Controller) (orch.View, bool) {
	v, err := ctrl.View(c.Request.Context())
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return orch.View{}, false
	}
	return v, true
}

func respond(c *gin.Context, okStatus int, err error, body gin.H) {
	if err != nil {
		log.Debug().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Err(err).Msg("command rejected")
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if body == nil {
		body = gin.H{"status": "queued"}
	}
	c.JSON(okStatus, body)
}

// statusOf maps command errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, outbound.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, outbound.ErrOversized):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidSeat),
		errors.Is(err, orch.ErrEmptyChat),
		errors.Is(err, orch.ErrEmptyReaction):
		return http.StatusBadRequest
	case errors.Is(err, orch.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, orch.ErrNoSwapRequest):
		return http.StatusNotFound
	case errors.Is(err, seating.ErrUnseated),
		errors.Is(err, orch.ErrNotSynchronized):
		return http.StatusConflict
	case errors.Is(err, orch.ErrNoSessionAPI):
		return http.StatusNotImplemented
	case errors.Is(err, link.ErrSessionTerminated),
		errors.Is(err, link.ErrRetriesExhausted),
		errors.Is(err, orch.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
