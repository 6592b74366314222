package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Zitations-Suche: "crossref" oder "europepmc", genau ein Provider pro Prozess
	SearchProvider    string  `envconfig:"SEARCH_PROVIDER" default:"crossref"`
	CrossrefSearchURL string  `envconfig:"CROSSREF_SEARCH_URL" default:"https://search.crossref.org/dois"`
	CrossrefMailto    string  `envconfig:"CROSSREF_MAILTO"`
	SearchRateLimit   float64 `envconfig:"SEARCH_RATE_LIMIT" default:"2"`

	DOIResolverURL     string `envconfig:"DOI_RESOLVER_URL" default:"https://doi.org/"`
	PublisherDirectory string `envconfig:"PUBLISHER_DIRECTORY"`
	PublisherPrefixes  string `envconfig:"PUBLISHER_PREFIXES"`

	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`

	PubMedBaseURL   string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedOAURL     string `envconfig:"PUBMED_OA_URL" default:"https://www.ncbi.nlm.nih.gov/pmc/utils/oa/oa.fcgi"`
	PubMedIDConvURL string `envconfig:"PUBMED_IDCONV_URL" default:"https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"`
	PubMedAPIKey    string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail     string `envconfig:"PUBMED_EMAIL"`
	PubMedTool      string `envconfig:"PUBMED_TOOL" default:"ref-resolver"`

	// Unpaywall-API für freie Volltexte fallback; ohne E-Mail wird die Anreicherung übersprungen
	UnpaywallBaseURL string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail   string `envconfig:"UNPAYWALL_EMAIL"`

	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	ReferenceWorkers int           `envconfig:"REFERENCE_WORKERS" default:"5"`

	CronSchedule  string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	CronBatchSize int    `envconfig:"CRON_BATCH_SIZE" default:"50"`

	ExportS3Key    string `envconfig:"EXPORT_S3_KEY"`
	ExportS3Secret string `envconfig:"EXPORT_S3_SECRET"`
	ExportS3URL    string `envconfig:"EXPORT_S3_URL"`
	ExportS3Region string `envconfig:"EXPORT_S3_REGION" default:"eu-central-1"`
	ExportS3Bucket string `envconfig:"EXPORT_S3_BUCKET"`
	KeepExports    int    `envconfig:"KEEP_EXPORTS" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Validate prüft Kombinationen, die envconfig allein nicht abdeckt.
func (c *Config) Validate() error {
	switch c.SearchProvider {
	case "crossref", "europepmc":
	default:
		return fmt.Errorf("unknown SEARCH_PROVIDER %q", c.SearchProvider)
	}
	if c.ReferenceWorkers < 1 {
		return fmt.Errorf("REFERENCE_WORKERS must be >= 1, got %d", c.ReferenceWorkers)
	}
	if c.SearchRateLimit <= 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT must be > 0, got %v", c.SearchRateLimit)
	}
	return nil
}

// ExportEnabled meldet, ob die S3-Zugangsdaten für den Export gesetzt sind.
func (c *Config) ExportEnabled() bool {
	return c.ExportS3URL != "" && c.ExportS3Bucket != "" && c.ExportS3Key != "" && c.ExportS3Secret != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
