// Package export renders final agreements as CSV.
//
// The format is fixed: one header row plus one data row per agreement, fields
// in the order {date, originalTime, newTime, dock, delayMinutes, costImpact,
// dayOffset, status}, comma-separated with no quoting. Values are constrained
// upstream to never contain commas.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Header is the fixed CSV header row.
const Header = "date,originalTime,newTime,dock,delayMinutes,costImpact,dayOffset,status"

// Row renders one agreement as a CSV data row.
func Row(rec models.AgreementExport) string {
	return fmt.Sprintf("%s,%s,%s,%s,%d,%s,%d,%s",
		rec.Date, rec.OriginalTime, rec.NewTime, rec.Dock,
		rec.DelayMinutes, rec.CostImpact, rec.DayOffset, rec.Status)
}

// Render returns the full CSV document for the given agreements: the header
// row followed by one row per agreement, newline-terminated.
func Render(recs []models.AgreementExport) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, rec := range recs {
		b.WriteString(Row(rec))
		b.WriteByte('\n')
	}
	return b.String()
}

// Write streams the CSV document to w.
func Write(w io.Writer, recs []models.AgreementExport) error {
	if _, err := io.WriteString(w, Render(recs)); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
