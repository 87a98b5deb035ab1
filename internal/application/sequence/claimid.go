package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
)

// ClaimIDConfig controls claim id formatting and the fiscal year boundary
type ClaimIDConfig struct {
	Prefix     string
	Separator  string
	Pad        int
	UseRange   bool
	StartMonth int
	StartDay   int
}

// DefaultClaimIDConfig returns a July 1 fiscal year with range labels, e.g. Claim-2025-26-00001
func DefaultClaimIDConfig() ClaimIDConfig {
	return ClaimIDConfig{
		Prefix:     "Claim",
		Separator:  "-",
		Pad:        5,
		UseRange:   true,
		StartMonth: 7,
		StartDay:   1,
	}
}

// FiscalYearLabel returns the label of the fiscal year containing now, in UTC.
// The start day is clamped to the length of the start month.
func FiscalYearLabel(now time.Time, startMonth, startDay int, useRange bool) string {
	now = now.UTC()
	if startMonth < 1 || startMonth > 12 {
		startMonth = 1
	}
	if startDay < 1 {
		startDay = 1
	}

	year := now.Year()
	if dim := daysIn(year, time.Month(startMonth)); startDay > dim {
		startDay = dim
	}
	fyStart := time.Date(year, time.Month(startMonth), startDay, 0, 0, 0, 0, time.UTC)

	startYear := year
	if now.Before(fyStart) {
		startYear = year - 1
	}

	if !useRange {
		return fmt.Sprintf("%d", startYear)
	}
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Format renders a claim id from a fiscal label and sequence number
func (c ClaimIDConfig) Format(label string, n int64) string {
	return fmt.Sprintf("%s%s%s%s%0*d", c.Prefix, c.Separator, label, c.Separator, c.Pad, n)
}

// ClaimIDGenerator issues claim ids numbered per fiscal year
type ClaimIDGenerator struct {
	alloc port.SequenceAllocator
	cfg   ClaimIDConfig
	now   func() time.Time
}

// NewClaimIDGenerator creates a claim id generator. A nil clock uses time.Now.
func NewClaimIDGenerator(alloc port.SequenceAllocator, cfg ClaimIDConfig, now func() time.Time) *ClaimIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &ClaimIDGenerator{alloc: alloc, cfg: cfg, now: now}
}

// NextClaimID allocates from the current fiscal year's series and formats the id
func (g *ClaimIDGenerator) NextClaimID(ctx context.Context) (string, error) {
	label := FiscalYearLabel(g.now(), g.cfg.StartMonth, g.cfg.StartDay, g.cfg.UseRange)

	n, err := g.alloc.Allocate(ctx, entity.SeriesClaimIDPrefix+label)
	if err != nil {
		return "", err
	}

	return g.cfg.Format(label, n), nil
}

// Verify interface compliance
var _ port.ClaimIDGenerator = (*ClaimIDGenerator)(nil)
