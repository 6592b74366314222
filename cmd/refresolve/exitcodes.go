package main

import (
	"errors"
	"fmt"
	"os"

	"ref-resolver/errs"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (extraction failure, storage error)
	ExitConfigError = 2 // Configuration or database setup failed
	ExitInputError  = 3 // Malformed identifier or invalid flags
	ExitNoMatch     = 4 // No match, unsupported publisher or missing scraper
	ExitUnavailable = 5 // External service unavailable, retry later
)

var errConfig = errors.New("configuration error")

// exitCode bildet einen Fehler auf den Exit-Code ab.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errConfig):
		return ExitConfigError
	case errors.Is(err, errs.ErrMalformedIdentifier):
		return ExitInputError
	case errs.Retryable(err):
		return ExitUnavailable
	case errors.Is(err, errs.ErrNoMatchFound),
		errors.Is(err, errs.ErrUnsupportedPublisher),
		errors.Is(err, errs.ErrScraperUnavailable):
		return ExitNoMatch
	default:
		return ExitError
	}
}

// exitWithError gibt den Fehler im gewählten Format aus und beendet den Prozess.
func exitWithError(err error) {
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	} else {
		outputJSON(ErrorResponse{Error: err.Error(), Kind: errs.Kind(err)})
	}
	os.Exit(exitCode(err))
}
