package services

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ref-resolver/config"
	"ref-resolver/directory"
	"ref-resolver/providers"
	"ref-resolver/providers/crossref"
	"ref-resolver/providers/europepmc"
	"ref-resolver/providers/highwire"
	"ref-resolver/providers/pubmed"
	"ref-resolver/providers/unpaywall"
	"ref-resolver/storage"
)

// Engine hält die verdrahteten Komponenten für Server, CLI und Cron.
type Engine struct {
	Config     *config.Config
	Cache      *storage.RecordCache
	Directory  *directory.Directory
	Search     providers.Provider
	Dispatcher *Dispatcher
	Resolver   *Resolver
	References *ReferenceService
	Metrics    *Metrics
}

// NewEngine verdrahtet alle Komponenten. reg darf nil sein (keine Metrik-Registrierung).
func NewEngine(cfg *config.Config, db *gorm.DB, logger *zap.Logger, reg prometheus.Registerer) (*Engine, error) {
	client := providers.NewHTTPClient(cfg.HTTPTimeout)

	table, err := directory.LoadTable(cfg.PublisherDirectory, cfg.PublisherPrefixes)
	if err != nil {
		return nil, fmt.Errorf("load publisher directory: %w", err)
	}
	dir := directory.New(table, directory.NewRedirector(client, cfg.DOIResolverURL, logger), logger)

	var search providers.Provider
	switch cfg.SearchProvider {
	case "europepmc":
		search = europepmc.NewFetcher(cfg, client, logger)
	default:
		search = crossref.NewFetcher(cfg, client, logger)
	}

	metrics := NewMetrics(reg)

	dispatcher := NewDispatcher(client, logger)
	dispatcher.Metrics = metrics
	meta := highwire.NewStrategy(logger)
	for _, id := range highwire.Scrapers {
		dispatcher.Register(id, meta)
	}
	dispatcher.Register("pubmed", pubmed.NewFetcher(cfg, client, logger))
	dispatcher.Register("europepmc", europepmc.NewStrategy(cfg, client, logger))
	if cfg.UnpaywallEmail != "" {
		dispatcher.PDFFallback = unpaywall.NewFetcher(cfg, client, logger)
	}

	cache := storage.NewRecordCache(db, logger)
	resolver := NewResolver(search, dir, dispatcher, cache, logger, metrics)
	refs := NewReferenceService(resolver, cache, cfg.ReferenceWorkers, logger)
	refs.SearchCitations = true

	logger.Info("Engine initialisiert",
		zap.String("search_provider", search.Name()),
		zap.Int("publishers", len(table.Profiles)),
		zap.Strings("scrapers", dispatcher.Registered()))

	return &Engine{
		Config:     cfg,
		Cache:      cache,
		Directory:  dir,
		Search:     search,
		Dispatcher: dispatcher,
		Resolver:   resolver,
		References: refs,
		Metrics:    metrics,
	}, nil
}
