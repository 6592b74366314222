// Package errs enthält die Fehler-Taxonomie der Resolution-Engine.
//
// Jeder Fehler, der den Resolver verlässt, wrappt genau einen dieser Sentinels,
// damit Aufrufer (Batch-Importe, HTTP-API, CLI) mit errors.Is zwischen
// Konfigurationslücken, transienten Ausfällen und terminalen Fehlern pro Paper
// unterscheiden können.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrMalformedIdentifier: Eingabe enthält keine erkennbare DOI bzw. URL. Nicht retrybar.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrNoMatchFound: die Suche hat keinen verwertbaren Kandidaten geliefert. Terminal.
	ErrNoMatchFound = errors.New("no match found")

	// ErrServiceUnavailable: ein externer Aufruf konnte nicht abgeschlossen werden. Retrybar durch den Aufrufer.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUnsupportedPublisher: kein Publisher-Profil passt.
	ErrUnsupportedPublisher = errors.New("unsupported publisher")

	// ErrScraperUnavailable: das Profil verweist auf eine nicht registrierte Strategie.
	ErrScraperUnavailable = errors.New("scraper unavailable")

	// ErrExtraction: die Strategie konnte die Seite nicht auswerten. Terminal für diesen Versuch.
	ErrExtraction = errors.New("extraction failed")

	// ErrDuplicateRecord: das Backend meldet eine Unique-Verletzung, die nicht erwartet wurde.
	ErrDuplicateRecord = errors.New("duplicate record")
)

var kinds = []struct {
	err    error
	name   string
	status int
}{
	{ErrMalformedIdentifier, "malformed_identifier", http.StatusBadRequest},
	{ErrNoMatchFound, "no_match", http.StatusNotFound},
	{ErrServiceUnavailable, "service_unavailable", http.StatusServiceUnavailable},
	{ErrUnsupportedPublisher, "unsupported_publisher", http.StatusUnprocessableEntity},
	{ErrScraperUnavailable, "scraper_unavailable", http.StatusUnprocessableEntity},
	{ErrExtraction, "extraction_failed", http.StatusBadGateway},
	{ErrDuplicateRecord, "duplicate_record", http.StatusConflict},
}

// Kind liefert einen stabilen Namen für Logs, Metrik-Labels und API-Antworten.
// Fehler außerhalb der Taxonomie werden als "internal" klassifiziert.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// HTTPStatus bildet einen Fehler auf den passenden HTTP-Statuscode ab.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Retryable gibt true zurück, wenn ein erneuter Versuch auf Request-Ebene sinnvoll ist.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// TerminalKind meldet, ob der Kind-Name einen Fehler bezeichnet, den ein späterer Versuch
// nicht behebt. "internal", "duplicate_record" und unbekannte Namen gelten als nicht terminal.
func TerminalKind(name string) bool {
	for _, k := range kinds {
		if k.name == name {
			return !Retryable(k.err) && k.err != ErrDuplicateRecord
		}
	}
	return false
}
