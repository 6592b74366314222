package storage

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"

	"ref-resolver/models"
)

const exportBatchSize = 100

// WriteSnapshot schreibt alle gespeicherten Records als gzip-komprimiertes JSON Lines nach w
// und liefert die Anzahl geschriebener Records.
func WriteSnapshot(ctx context.Context, c *RecordCache, w io.Writer) (int, error) {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	n := 0
	err := c.Each(ctx, exportBatchSize, func(rec *models.PaperRecord) error {
		n++
		return enc.Encode(rec)
	})
	if err != nil {
		gz.Close()
		return n, err
	}
	return n, gz.Close()
}
