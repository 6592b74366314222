package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
)

// RecordCache hält aufgelöste Paper samt Autoren und geordneten Referenzen.
// Pro normalisierter DOI existiert höchstens ein Paper; der erste Schreiber gewinnt.
type RecordCache struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRecordCache erstellt den Cache über einer bestehenden gorm-Verbindung.
// Die Verbindung sollte mit gorm.Config{TranslateError: true} geöffnet sein.
func NewRecordCache(db *gorm.DB, logger *zap.Logger) *RecordCache {
	return &RecordCache{DB: db, Logger: logger}
}

// Migrate legt die Tabellen an bzw. aktualisiert sie.
func (c *RecordCache) Migrate(ctx context.Context) error {
	return c.DB.WithContext(ctx).AutoMigrate(
		&models.Paper{},
		&models.PaperAuthor{},
		&models.Reference{},
		&models.PaperReference{},
	)
}

// Lookup liefert den Record zur DOI oder nil, nil.
func (c *RecordCache) Lookup(ctx context.Context, doi string) (*models.PaperRecord, error) {
	if n, err := identifier.NormalizeDOI(doi); err == nil {
		doi = n
	}
	var paper models.Paper
	err := c.withAuthors(ctx).Where("doi = ?", doi).Take(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", doi, err)
	}
	return c.load(ctx, &paper)
}

// LookupURL sucht über die kanonische URL, für Artikel ohne DOI in der URL.
// Getroffen wird sowohl die Artikel-URL als auch die ursprünglich angefragte URL.
func (c *RecordCache) LookupURL(ctx context.Context, rawURL string) (*models.PaperRecord, error) {
	canon, err := identifier.CanonicalURL(rawURL)
	if err != nil {
		return nil, nil
	}
	var paper models.Paper
	err = c.withAuthors(ctx).Where("canonical_url = ? OR request_url = ?", canon, canon).Order("id").Take(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup url %s: %w", canon, err)
	}
	return c.load(ctx, &paper)
}

// Store speichert einen Record samt Autoren und Referenzen in einer Transaktion.
// Ist die DOI (bzw. bei DOI-losen Records die kanonische URL) schon vorhanden,
// bleibt der bestehende Eintrag unverändert und Store liefert false.
func (c *RecordCache) Store(ctx context.Context, rec *models.PaperRecord) (bool, error) {
	paper := toPaper(rec)
	log := c.Logger.With(zap.String("url", paper.URL))
	if paper.DOI != nil {
		log = log.With(zap.String("doi", *paper.DOI))
	}

	inserted := false
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if paper.DOI == nil {
			keys := []string{paper.CanonicalURL}
			if paper.RequestURL != "" {
				keys = append(keys, paper.RequestURL)
			}
			var existing models.Paper
			err := tx.Select("id").
				Where("doi IS NULL AND (canonical_url IN ? OR request_url IN ?)", keys, keys).
				Order("id").
				Take(&existing).Error
			switch {
			case err == nil:
				return addRequestURL(tx, "id = ?", existing.ID, paper.RequestURL)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doi"}},
			DoNothing: true,
		}).Omit(clause.Associations).Create(paper)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return addRequestURL(tx, "doi = ?", *paper.DOI, paper.RequestURL)
		}
		inserted = true

		if len(rec.Authors) > 0 {
			authors := make([]models.PaperAuthor, 0, len(rec.Authors))
			for i, a := range rec.Authors {
				a = a.Normalized()
				authors = append(authors, models.PaperAuthor{
					PaperID:      paper.ID,
					Position:     i + 1,
					Name:         a.Name,
					Affiliations: datatypes.JSONSlice[string](a.Affiliations),
					Email:        a.Email,
				})
			}
			if err := tx.Create(&authors).Error; err != nil {
				return err
			}
		}

		// Bereits gespeicherte Referenzen auf diese DOI zeigen ab jetzt auf das Paper.
		if paper.DOI != nil {
			if err := tx.Model(&models.Reference{}).
				Where("doi = ? AND resolved_paper_id IS NULL", *paper.DOI).
				Update("resolved_paper_id", paper.ID).Error; err != nil {
				return err
			}
		}

		if len(rec.References) == 0 {
			return nil
		}
		links := make([]models.PaperReference, 0, len(rec.References))
		for i, r := range rec.References {
			ref, err := findOrCreateReference(tx, r)
			if err != nil {
				return err
			}
			links = append(links, models.PaperReference{PaperID: paper.ID, Ordering: i + 1, ReferenceID: ref.ID})
		}
		return tx.Omit(clause.Associations).Create(&links).Error
	})
	if err != nil {
		return false, translate(err)
	}

	if inserted {
		log.Info("Record gespeichert", zap.Uint("id", paper.ID), zap.Int("references", len(rec.References)))
	} else {
		log.Debug("Record bereits vorhanden, Store ist ein No-op")
	}
	return inserted, nil
}

// StoreReference hängt eine Referenz an die Liste des Papers mit ownerDOI an.
// Ordering 0 vergibt die nächste freie Position; eine belegte Position ergibt
// ErrDuplicateRecord, eine Position hinter der nächsten freien ErrMalformedIdentifier.
func (c *RecordCache) StoreReference(ctx context.Context, ownerDOI string, ref models.ReferenceRecord) error {
	doi, err := identifier.NormalizeDOI(ownerDOI)
	if err != nil {
		return err
	}
	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.Paper
		if err := tx.Select("id").Where("doi = ?", doi).Take(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no cached paper for %s", errs.ErrNoMatchFound, doi)
			}
			return err
		}

		var last int
		if err := tx.Model(&models.PaperReference{}).
			Where("paper_id = ?", owner.ID).
			Select("COALESCE(MAX(ordering), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		ordering := ref.Ordering
		switch {
		case ordering <= 0:
			ordering = last + 1
		case ordering > last+1:
			// Positionen bleiben lückenlos 1..N
			return fmt.Errorf("%w: ordering %d leaves a gap after %d", errs.ErrMalformedIdentifier, ordering, last)
		}

		row, err := findOrCreateReference(tx, ref)
		if err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&models.PaperReference{
			PaperID:     owner.ID,
			Ordering:    ordering,
			ReferenceID: row.ID,
		}).Error
	})
	return translate(err)
}

// UnresolvedReferenceDOIs liefert DOIs gespeicherter Referenzen, zu denen noch kein Paper im Cache liegt.
// Nie versuchte DOIs kommen zuerst, danach die am längsten nicht versuchten. Referenzen mit
// terminalem Fehlschlag werden nicht mehr geliefert.
func (c *RecordCache) UnresolvedReferenceDOIs(ctx context.Context, limit int) ([]string, error) {
	var dois []string
	err := c.DB.WithContext(ctx).Model(&models.Reference{}).
		Where("doi IS NOT NULL AND resolved_paper_id IS NULL AND backfill_terminal = ?", false).
		Order("backfill_attempted_at IS NOT NULL, backfill_attempted_at, id").
		Limit(limit).
		Pluck("doi", &dois).Error
	return dois, err
}

// MarkBackfillAttempt vermerkt einen Back-fill-Versuch an allen Referenzen mit der DOI.
// kind ist der errs.Kind des Fehlschlags, leer bei Erfolg.
func (c *RecordCache) MarkBackfillAttempt(ctx context.Context, doi, kind string, terminal bool) error {
	err := c.DB.WithContext(ctx).Model(&models.Reference{}).
		Where("doi = ?", doi).
		Updates(map[string]any{
			"backfill_attempted_at": time.Now(),
			"backfill_error":        kind,
			"backfill_terminal":     terminal,
		}).Error
	if err != nil {
		return fmt.Errorf("mark backfill attempt %s: %w", doi, err)
	}
	return nil
}

// Each ruft fn für jeden gespeicherten Record auf, in Batches von batchSize Papers.
func (c *RecordCache) Each(ctx context.Context, batchSize int, fn func(*models.PaperRecord) error) error {
	var papers []models.Paper
	return c.withAuthors(ctx).FindInBatches(&papers, batchSize, func(tx *gorm.DB, batch int) error {
		for i := range papers {
			rec, err := c.load(ctx, &papers[i])
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	}).Error
}

// addRequestURL merkt sich die angefragte URL am bestehenden Paper, solange dort noch keine steht.
func addRequestURL(tx *gorm.DB, query string, arg any, requestURL string) error {
	if requestURL == "" {
		return nil
	}
	return tx.Model(&models.Paper{}).
		Where(query, arg).
		Where("(request_url IS NULL OR request_url = '')").
		Where("canonical_url <> ?", requestURL).
		Update("request_url", requestURL).Error
}

func (c *RecordCache) withAuthors(ctx context.Context) *gorm.DB {
	return c.DB.WithContext(ctx).Preload("Authors", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (c *RecordCache) load(ctx context.Context, paper *models.Paper) (*models.PaperRecord, error) {
	var links []models.PaperReference
	if err := c.DB.WithContext(ctx).Preload("Reference").
		Where("paper_id = ?", paper.ID).
		Order("ordering").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("load references of paper %d: %w", paper.ID, err)
	}
	return toRecord(paper, links), nil
}

// findOrCreateReference dedupliziert über die DOI, ohne DOI über den exakten Titel.
func findOrCreateReference(tx *gorm.DB, r models.ReferenceRecord) (*models.Reference, error) {
	row := toReference(r)

	var query *gorm.DB
	switch {
	case row.DOI != nil:
		query = tx.Where("doi = ?", *row.DOI)
	case row.TitleKey != "":
		query = tx.Where("title_key = ? AND doi IS NULL", row.TitleKey)
	}
	if query != nil {
		var existing models.Reference
		err := query.Order("id").Take(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if row.DOI != nil {
		var target models.Paper
		err := tx.Select("id").Where("doi = ?", *row.DOI).Take(&target).Error
		switch {
		case err == nil:
			row.ResolvedPaperID = &target.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// translate bildet Unique-Verletzungen auf errs.ErrDuplicateRecord ab.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", errs.ErrDuplicateRecord, err)
	}
	return err
}
