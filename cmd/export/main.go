// Command export schreibt einen Snapshot des Record-Caches als gzip-komprimiertes
// JSON Lines nach S3 und rotiert ältere Snapshots.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ref-resolver/config"
	"ref-resolver/storage"
)

const exportPrefix = "export-"

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	if !cfg.ExportEnabled() {
		logging.Fatal("Export nicht konfiguriert: EXPORT_S3_URL, EXPORT_S3_BUCKET, EXPORT_S3_KEY und EXPORT_S3_SECRET setzen")
	}
	if err := run(context.Background(), cfg, logging); err != nil {
		logging.Fatal("Export fehlgeschlagen", zap.Error(err))
	}
	logging.Info("Export erfolgreich abgeschlossen.")
}

func run(ctx context.Context, cfg *config.Config, logging *zap.Logger) error {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	cache := storage.NewRecordCache(db, logging)

	// 1. Snapshot erstellen
	var buf bytes.Buffer
	n, err := storage.WriteSnapshot(ctx, cache, &buf)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logging.Info("Snapshot erstellt", zap.Int("records", n), zap.Int("bytes", buf.Len()))

	// 2. S3-Client erstellen
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create s3 client: %w", err)
	}

	// 3. Snapshot hochladen
	key := fmt.Sprintf("%s%s.jsonl.gz", exportPrefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadFile(ctx, client, cfg, key, buf.Bytes())
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logging.Info("Snapshot hochgeladen", zap.String("link", link))

	// 4. Alte Snapshots rotieren
	deleted, err := storage.RotateObjects(ctx, client, cfg.ExportS3Bucket, exportPrefix, cfg.KeepExports, logging)
	if err != nil {
		return fmt.Errorf("rotate exports: %w", err)
	}
	logging.Info("Rotation abgeschlossen", zap.Int("deleted", deleted), zap.Int("keep", cfg.KeepExports))
	return nil
}
