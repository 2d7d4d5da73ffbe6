package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geolock/internal/attendance"
	"geolock/internal/auth"
	"geolock/internal/code"
	"geolock/internal/config"
	"geolock/internal/event"
	"geolock/internal/geo"
	"geolock/internal/geofence"
	"geolock/internal/httpmiddleware"
	"geolock/internal/metrics"
	"geolock/internal/queue"
	"geolock/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "geolock:attendance")
	}

	events := event.NewRepository(db.Client)
	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo)
	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id"`
		}
		// An empty body is fine; the server mints an identity then.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if req.DeviceID == "" {
			req.DeviceID = uuid.NewString()
		}

		if err := repo.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"device_id":     req.DeviceID,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Resolve a scanned/typed string to an event. Malformed input is not an
	// error here; it fails as not-found.
	authGroup.POST("/attend/resolve", func(c *gin.Context) {
		var req struct {
			Code      string `json:"code" binding:"required"`
			Direction string `json:"direction"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ambient, ok := attendance.ParseDirection(req.Direction)
		if !ok {
			ambient = attendance.CheckIn
		}

		res := code.Resolve(req.Code, ambient)
		evt, err := events.FindActive(c.Request.Context(), res.Ref, res.ByID)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": evt, "direction": res.Direction})
	})

	// Server-side geofence re-check of a client-reported fix.
	authGroup.POST("/attend/verify", func(c *gin.Context) {
		var req struct {
			EventID   string  `json:"event_id" binding:"required"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			AccuracyM float64 `json:"accuracy_m"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		evt, err := events.FindActive(c.Request.Context(), req.EventID, true)
		if err != nil {
			writeLookupError(c, err)
			return
		}

		pos := geofence.Position{Point: geo.Point{Lat: req.Latitude, Lng: req.Longitude}, AccuracyM: req.AccuracyM}
		res := geofence.Decide(pos, evt.Center, evt.RadiusM, cfg.GeofenceSlackM)
		if res.State != geofence.Verified {
			metrics.DenialsTotal.WithLabelValues(string(res.Reason)).Inc()
		}
		c.JSON(http.StatusOK, gin.H{
			"admitted":   res.State == geofence.Verified,
			"distance_m": res.DistanceM,
			"radius_m":   evt.RadiusM,
			"message":    res.Message,
		})
	})

	// Check-out autofill: the device's own prior check-in, if any.
	authGroup.GET("/attend/autofill", func(c *gin.Context) {
		eventID := c.Query("event_id")
		if eventID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id required"})
			return
		}
		rec, err := svc.Autofill(c.Request.Context(), eventID, deviceSubject(c))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "System error. Please try again."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": rec, "locked": rec != nil})
	})

	// Name suggestions against check-in records; empty until three chars.
	authGroup.GET("/attend/suggest", func(c *gin.Context) {
		eventID := c.Query("event_id")
		if eventID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id required"})
			return
		}
		recs, err := svc.Suggest(c.Request.Context(), eventID, c.Query("name"))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "System error. Please try again."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"suggestions": recs})
	})

	authGroup.POST("/attend/submit", func(c *gin.Context) {
		var req struct {
			EventID        string  `json:"event_id" binding:"required"`
			Direction      string  `json:"direction" binding:"required"`
			Name           string  `json:"name"`
			Email          string  `json:"email"`
			ParticipantKey string  `json:"participant_key"`
			Faculty        string  `json:"faculty"`
			Program        string  `json:"program"`
			YearLevel      string  `json:"year_level"`
			Latitude       float64 `json:"latitude"`
			Longitude      float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dir, ok := attendance.ParseDirection(req.Direction)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be check-in or check-out"})
			return
		}

		rec, err := svc.Submit(c.Request.Context(), attendance.Submission{
			EventID:   req.EventID,
			DeviceID:  deviceSubject(c),
			Direction: dir,
			Profile: attendance.Profile{
				Name:           req.Name,
				Email:          req.Email,
				ParticipantKey: req.ParticipantKey,
				Faculty:        req.Faculty,
				Program:        req.Program,
				YearLevel:      req.YearLevel,
			},
			Position: geo.Point{Lat: req.Latitude, Lng: req.Longitude},
		})
		if err != nil {
			writeSubmitError(c, err)
			return
		}

		metrics.AdmissionsTotal.WithLabelValues(string(rec.Direction)).Inc()
		if body, merr := json.Marshal(rec); merr == nil {
			if perr := q.Publish(ctx, queue.Message{Type: "attendance", Body: body}); perr != nil {
				log.Printf("queue publish failed: %v", perr)
			}
		}

		c.JSON(http.StatusCreated, gin.H{"record": rec})
	})

	// Organizer listing; the dashboard only renders what the core wrote.
	authGroup.GET("/attendance", func(c *gin.Context) {
		eventID := c.Query("event_id")
		if eventID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id required"})
			return
		}
		direction, _ := attendance.ParseDirection(c.Query("direction"))
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		recs, err := repo.List(c.Request.Context(), eventID, direction, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// deviceSubject pulls the device identity from the verified token claims.
func deviceSubject(c *gin.Context) string {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims.Subject
}

func writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, event.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found."})
	case errors.Is(err, event.ErrNotActive):
		c.JSON(http.StatusGone, gin.H{"error": "Sorry, the event attendance is already closed or not yet started."})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "System error. Please try again."})
	}
}

func writeSubmitError(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "missing": verr.Missing})
		return
	}
	var dup *attendance.DuplicateError
	if errors.As(err, &dup) {
		metrics.DuplicatesTotal.WithLabelValues(string(dup.Kind)).Inc()
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error(), "kind": dup.Kind})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to save attendance. Please try again."})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
