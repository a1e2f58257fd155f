// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/bd-research/pkg/types"
)

// QueryOptions filters List and the exports.
type QueryOptions struct {
	// Sector matches runs for a sector, case-insensitively.
	Sector string

	// Company matches runs whose company contains this text.
	Company string

	// DegradedOnly keeps only partial reports.
	DegradedOnly bool

	// Since keeps runs generated at or after this time.
	Since time.Time

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	GeneratedAt    time.Time     `json:"generated_at" yaml:"generated_at"`
	Sector         string        `json:"sector" yaml:"sector"`
	Company        string        `json:"company,omitempty" yaml:"company,omitempty"`
	TriggerSummary string        `json:"trigger_summary" yaml:"trigger_summary"`
	Opportunities  int           `json:"opportunities" yaml:"opportunities"`
	Degraded       bool          `json:"degraded" yaml:"degraded"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}

// List returns recorded runs, newest first.
func (s *Store) List(ctx context.Context, opts QueryOptions) ([]RunSummary, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT run_id, generated_at, sector, company, trigger_summary, opportunities, degraded, duration_ms
		FROM runs WHERE 1=1`)

	if opts.Sector != "" {
		qb.WriteString(` AND lower(sector) = lower(?)`)
		args = append(args, opts.Sector)
	}
	if opts.Company != "" {
		qb.WriteString(` AND lower(company) LIKE '%' || lower(?) || '%'`)
		args = append(args, opts.Company)
	}
	if opts.DegradedOnly {
		qb.WriteString(` AND degraded = 1`)
	}
	if !opts.Since.IsZero() {
		qb.WriteString(` AND generated_at >= ?`)
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}

	qb.WriteString(` ORDER BY generated_at DESC LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rs         RunSummary
			at         string
			company    *string
			summary    *string
			durationMS *int64
		)
		if err := rows.Scan(&rs.RunID, &at, &rs.Sector, &company, &summary,
			&rs.Opportunities, &rs.Degraded, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rs.GeneratedAt, _ = time.Parse(time.RFC3339Nano, at)
		if company != nil {
			rs.Company = *company
		}
		if summary != nil {
			rs.TriggerSummary = *summary
		}
		if durationMS != nil {
			rs.Duration = time.Duration(*durationMS) * time.Millisecond
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// reports returns the full reports matching opts, newest first.
func (s *Store) reports(ctx context.Context, opts QueryOptions) ([]types.FinalReport, error) {
	runs, err := s.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]types.FinalReport, 0, len(runs))
	for _, r := range runs {
		report, err := s.Get(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}
