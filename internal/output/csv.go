/*
PURPOSE:
  Writes a flattened report as CSV rows for spreadsheet use.

REQUIREMENTS:
  User-specified:
  - None; CLI convenience.

  Implementation-discovered:
  - One row per label: section, label, value.
  - Sections written in response order: overview, statistics, ruleResults, opportunities.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (audit --format csv)
  - Consumes: internal/model.FlattenedReport

ERROR HANDLING:
  - Returns error on write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every report.

USAGE:
  w, err := output.NewCSVWriter(os.Stdout)
  w.Write(flat)

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/csv"
	"io"
	"sync"

	"github.com/daryltucker/psi-proxy/internal/model"
)

// CSVHeader is the first row written by NewCSVWriter.
var CSVHeader = []string{"section", "label", "value"}

// CSVWriter handles writing reports as CSV.
type CSVWriter struct {
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter and writes the header.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &CSVWriter{writer: cw}, nil
}

// Write writes every row of r.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.FlattenedReport) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	sections := []struct {
		name    string
		section model.Section
	}{
		{"overview", r.Overview},
		{"statistics", r.Statistics},
		{"ruleResults", r.RuleResults},
		{"opportunities", r.Opportunities},
	}
	for _, s := range sections {
		for _, e := range s.section.Entries() {
			if err := cw.writer.Write([]string{s.name, e.Label, e.Value}); err != nil {
				return err
			}
		}
	}
	cw.writer.Flush()
	return cw.writer.Error()
}
