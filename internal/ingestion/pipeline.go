// Package ingestion implements the fixed fetch→normalize→validate→publish→
// index pipeline shared by sync and dataset-build jobs, plus the validators
// and row builders that feed it.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Row is an untyped field-name-to-value mapping. The pipeline never
// inspects row semantics; only field presence, dedup keys, and the
// publisher interpret contents.
type Row map[string]any

// BatchResult reports how many rows survived each stage of one batch.
type BatchResult struct {
	FetchedCount    int
	NormalizedCount int
	ValidatedCount  int
	PublishedCount  int
	Rows            []Row
}

// Fetch retrieves the raw rows for one batch. I/O-bound.
type Fetch func(ctx context.Context) ([]Row, error)

// Normalize is a pure transform over fetched rows.
type Normalize func(rows []Row) []Row

// Validate enforces required-field presence and optional dedup keys.
type Validate func(rows []Row) []Row

// Publish persists validated rows and returns the stored count.
type Publish func(ctx context.Context, rows []Row) (int, error)

// Index performs an optional post-publish side effect.
type Index func(ctx context.Context, rows []Row) error

// RunBatch executes the five pipeline stages against one batch of rows.
// index may be nil, in which case that stage is skipped. Publish is only
// called if validate produced at least one row.
func RunBatch(ctx context.Context, fetch Fetch, normalize Normalize, validate Validate, publish Publish, index Index) (BatchResult, error) {
	fetched, err := fetch(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	normalized := normalize(fetched)
	validated := validate(normalized)

	published := 0
	if len(validated) > 0 {
		published, err = publish(ctx, validated)
		if err != nil {
			return BatchResult{}, err
		}
	}

	if index != nil {
		if err := index(ctx, validated); err != nil {
			return BatchResult{}, err
		}
	}

	return BatchResult{
		FetchedCount:    len(fetched),
		NormalizedCount: len(normalized),
		ValidatedCount:  len(validated),
		PublishedCount:  published,
		Rows:            validated,
	}, nil
}

// Passthrough is a Normalize/Validate stage that returns rows unchanged.
func Passthrough(rows []Row) []Row { return rows }

// ValidateRequiredFields drops rows missing any of requiredFields, then (if
// dedupeKeys is non-empty) removes duplicates keyed by the stringified
// values of dedupeKeys, first occurrence wins. Both filtered classes are
// counted and logged at warning level with stage and the field/key list.
func ValidateRequiredFields(rows []Row, requiredFields []string, dedupeKeys []string, stage string, logger *slog.Logger) []Row {
	valid := make([]Row, 0, len(rows))
	missingCount := 0

	for _, row := range rows {
		missing := false
		for _, field := range requiredFields {
			if isMissing(row[field]) {
				missing = true
				break
			}
		}
		if missing {
			missingCount++
			continue
		}
		valid = append(valid, row)
	}

	if missingCount > 0 && logger != nil {
		logger.Warn("stage skipped rows with missing required fields",
			"stage", stage, "count", missingCount, "fields", requiredFields)
	}

	if len(dedupeKeys) == 0 {
		return valid
	}

	deduped := make([]Row, 0, len(valid))
	seen := make(map[string]struct{}, len(valid))
	duplicateCount := 0

	for _, row := range valid {
		key, ok := buildRowKey(row, dedupeKeys)
		if !ok {
			// Passed required_fields but is missing a dedupe key: defensive
			// drop rather than letting an unkeyable row through.
			duplicateCount++
			continue
		}
		if _, exists := seen[key]; exists {
			duplicateCount++
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, row)
	}

	if duplicateCount > 0 && logger != nil {
		logger.Warn("stage removed duplicate rows", "stage", stage, "count", duplicateCount, "keys", dedupeKeys)
	}

	return deduped
}

func buildRowKey(row Row, keys []string) (string, bool) {
	var b strings.Builder
	for i, key := range keys {
		v := row[key]
		if isMissing(v) {
			return "", false
		}
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(toKeyString(v))
	}
	return b.String(), true
}

func toKeyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
