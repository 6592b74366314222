package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ref-resolver/config"
	"ref-resolver/errs"
	"ref-resolver/models"
	"ref-resolver/services"
)

var backfillCounter prometheus.Counter

func init() {
	backfillCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refresolver_backfilled_references_total",
			Help: "Total number of references resolved by the scheduled back-fill.",
		},
	)
	prometheus.MustRegister(backfillCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.APISecretKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	engine, err := services.NewEngine(cfg, db, logging, prometheus.DefaultRegisterer)
	if err != nil {
		logging.Fatal("Engine setup failed", zap.Error(err))
	}

	logging.Info("Running database auto-migration...")
	if err := engine.Cache.Migrate(context.Background()); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	router := setupRouter(cfg, engine, logging)

	// Back-fill des Zitationsgraphen
	cronScheduler := cron.New()
	_, err = cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled reference back-fill...")
		resolved, outcomes, err := engine.References.Backfill(context.Background(), cfg.CronBatchSize)
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
			return
		}
		logging.Info("Cron job completed", zap.Int("attempted", len(outcomes)), zap.Int("resolved", resolved))
		backfillCounter.Add(float64(resolved))
	})
	if err != nil {
		logging.Fatal("Invalid cron schedule", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
	}
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupRouter(cfg *config.Config, engine *services.Engine, log *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", apiKeyAuthMiddleware(cfg))
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupResolveRoutes(api, engine, log)
	setupPaperRoutes(api, engine, log)
	setupPublisherRoutes(api, engine)
	return router
}

// respondError schreibt den Fehler mit dem zu seiner Klasse passenden Statuscode.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.String("kind", errs.Kind(err)), zap.Error(err))
	} else {
		log.Info("Request rejected", zap.String("path", c.FullPath()), zap.String("kind", errs.Kind(err)), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": errs.Kind(err)})
}

type resolveBody struct {
	Citation string `json:"citation"`
	DOI      string `json:"doi"`
	URL      string `json:"url"`
}

// request liefert die Anfrage zum einzigen gesetzten Feld.
func (b resolveBody) request() (models.ResolutionRequest, error) {
	var reqs []models.ResolutionRequest
	if v := strings.TrimSpace(b.Citation); v != "" {
		reqs = append(reqs, models.CitationRequest(v))
	}
	if v := strings.TrimSpace(b.DOI); v != "" {
		reqs = append(reqs, models.DOIRequest(v))
	}
	if v := strings.TrimSpace(b.URL); v != "" {
		reqs = append(reqs, models.URLRequest(v))
	}
	if len(reqs) != 1 {
		return models.ResolutionRequest{}, fmt.Errorf("%w: exactly one of citation, doi or url is required", errs.ErrMalformedIdentifier)
	}
	return reqs[0], nil
}

func setupResolveRoutes(rg *gin.RouterGroup, engine *services.Engine, log *zap.Logger) {
	r := rg.Group("/resolve")

	r.POST("", func(c *gin.Context) {
		var body resolveBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req, err := body.request()
		if err != nil {
			respondError(c, log, err)
			return
		}
		rec, err := engine.Resolver.Resolve(c.Request.Context(), req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// Fan-out über die Referenzen eines gespeicherten Papers
	r.POST("/references", func(c *gin.Context) {
		var body struct {
			DOI string `json:"doi" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'doi' field is required."})
			return
		}
		outcomes, err := engine.References.ResolveReferences(c.Request.Context(), body.DOI)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"doi": body.DOI, "references": outcomes})
	})

	// Literaturverzeichnis als Freitext, z.B. aus einem PDF-Extrakt
	r.POST("/text", func(c *gin.Context) {
		var body struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'text' field is required."})
			return
		}
		log.Info("Resolving references from text", zap.Int("text_length", len(body.Text)))
		outcomes, err := engine.References.ResolveText(c.Request.Context(), body.Text)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"references": outcomes})
	})
}

func setupPaperRoutes(rg *gin.RouterGroup, engine *services.Engine, log *zap.Logger) {
	r := rg.Group("/papers")

	lookup := func(c *gin.Context) (*models.PaperRecord, bool) {
		doi := c.Query("doi")
		if doi == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'doi' is required"})
			return nil, false
		}
		rec, err := engine.Cache.Lookup(c.Request.Context(), doi)
		if err != nil {
			respondError(c, log, err)
			return nil, false
		}
		if rec == nil {
			respondError(c, log, fmt.Errorf("%w: no cached paper for %s", errs.ErrNoMatchFound, doi))
			return nil, false
		}
		return rec, true
	}

	r.GET("", func(c *gin.Context) {
		if rec, ok := lookup(c); ok {
			c.JSON(http.StatusOK, rec)
		}
	})

	r.GET("/references", func(c *gin.Context) {
		if rec, ok := lookup(c); ok {
			refs := rec.References
			if refs == nil {
				refs = []models.ReferenceRecord{}
			}
			c.JSON(http.StatusOK, gin.H{"doi": rec.DOI, "references": refs})
		}
	})

	// Nachträgliches Anhängen einer Referenz; ohne ordering wird sie ans Ende gestellt
	r.POST("/references", func(c *gin.Context) {
		var body struct {
			DOI       string                 `json:"doi" binding:"required"`
			Reference models.ReferenceRecord `json:"reference"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'doi' field is required."})
			return
		}
		if err := engine.Cache.StoreReference(c.Request.Context(), body.DOI, body.Reference); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "created"})
	})
}

func setupPublisherRoutes(rg *gin.RouterGroup, engine *services.Engine) {
	rg.GET("/publishers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"publishers": engine.Directory.Profiles(),
			"scrapers":   engine.Dispatcher.Registered(),
		})
	})
}
