/*
PURPOSE:
  Reshapes a PageSpeed Insights v5 report into the flattened summary served by /psi.
  Four independent projections: overview, field statistics, lab data, opportunities.

REQUIREMENTS:
  User-specified:
  - Overview is exactly URL, Strategy, Performance in that order.
  - Every other projection is sorted by label.
  - Lab data values carry no whitespace.
  - Opportunities only list "opportunity" audits with positive savings.

  Implementation-discovered:
  - Audit references may point at audits missing from the map; those are skipped.
  - The performance score may be null; it renders as 0.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Runner.Audit)
  - Uses: internal/model, google.golang.org/api/pagespeedonline/v5

ERROR HANDLING:
  - Projections never fail; missing sections produce empty output.
  - Decode rejects documents that are not PageSpeed reports.

IMPLEMENTATION RULES:
  - Pure functions only, no I/O.
  - Duration text comes from a DurationFormatter.

USAGE:
  resp, err := report.Decode(raw)
  flat := report.Flatten(resp, "mobile", report.PrettyDuration{})

RELATED FILES:
  - internal/report/duration.go
  - internal/model/types.go

MAINTENANCE:
  - Update group names if Lighthouse renames "metrics" or "load-opportunities".
*/

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/daryltucker/psi-proxy/internal/model"
	"google.golang.org/api/pagespeedonline/v5"
)

// Audit reference groups in the performance category.
const (
	GroupMetrics       = "metrics"
	GroupOpportunities = "load-opportunities"
)

// ErrNoLighthouseResult is returned by Decode when the document has no lighthouseResult.
var ErrNoLighthouseResult = errors.New("report has no lighthouseResult")

// document holds the parts of a runPagespeed response the projections read.
// Everything else is left undecoded.
type document struct {
	ID                string          `json:"id"`
	LighthouseResult  json.RawMessage `json:"lighthouseResult"`
	LoadingExperience json.RawMessage `json:"loadingExperience"`
}

type lighthouseDocument struct {
	Categories *struct {
		Performance json.RawMessage `json:"performance"`
	} `json:"categories"`
	Audits map[string]json.RawMessage `json:"audits"`
}

type loadingExperienceDocument struct {
	Metrics map[string]json.RawMessage `json:"metrics"`
}

// Decode parses a raw runPagespeed response. Only id, the performance
// category, the audits and the field metrics are decoded, so unexpected
// shapes elsewhere in the document do not fail the report.
func Decode(raw []byte) (*pagespeedonline.PagespeedApiPagespeedResponseV5, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if isNull(doc.LighthouseResult) {
		return nil, ErrNoLighthouseResult
	}

	lh, err := decodeLighthouse(doc.LighthouseResult)
	if err != nil {
		return nil, err
	}
	resp := &pagespeedonline.PagespeedApiPagespeedResponseV5{Id: doc.ID, LighthouseResult: lh}

	if !isNull(doc.LoadingExperience) {
		var le loadingExperienceDocument
		if err := json.Unmarshal(doc.LoadingExperience, &le); err != nil {
			return nil, fmt.Errorf("decode loadingExperience: %w", err)
		}
		metrics := make(map[string]pagespeedonline.UserPageLoadMetricV5, len(le.Metrics))
		for name, rawMetric := range le.Metrics {
			var m pagespeedonline.UserPageLoadMetricV5
			if err := json.Unmarshal(rawMetric, &m); err != nil {
				return nil, fmt.Errorf("decode metric %s: %w", name, err)
			}
			metrics[name] = m
		}
		resp.LoadingExperience = &pagespeedonline.PagespeedApiLoadingExperienceV5{Metrics: metrics}
	}
	return resp, nil
}

func decodeLighthouse(raw json.RawMessage) (*pagespeedonline.LighthouseResultV5, error) {
	var doc lighthouseDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode lighthouseResult: %w", err)
	}

	lh := &pagespeedonline.LighthouseResultV5{}
	if doc.Categories != nil && !isNull(doc.Categories.Performance) {
		var perf pagespeedonline.LighthouseCategoryV5
		if err := json.Unmarshal(doc.Categories.Performance, &perf); err != nil {
			return nil, fmt.Errorf("decode performance category: %w", err)
		}
		lh.Categories = &pagespeedonline.Categories{Performance: &perf}
	}

	// Only audits the performance category points at are read.
	lh.Audits = make(map[string]pagespeedonline.LighthouseAuditResultV5)
	if lh.Categories == nil {
		return lh, nil
	}
	for _, ref := range lh.Categories.Performance.AuditRefs {
		if ref == nil {
			continue
		}
		rawAudit, ok := doc.Audits[ref.Id]
		if !ok || isNull(rawAudit) {
			continue
		}
		var a pagespeedonline.LighthouseAuditResultV5
		if err := json.Unmarshal(rawAudit, &a); err != nil {
			return nil, fmt.Errorf("decode audit %s: %w", ref.Id, err)
		}
		lh.Audits[ref.Id] = a
	}
	return lh, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Flatten runs all four projections and zips them into a FlattenedReport.
func Flatten(resp *pagespeedonline.PagespeedApiPagespeedResponseV5, strategy string, f DurationFormatter) model.FlattenedReport {
	var metrics map[string]pagespeedonline.UserPageLoadMetricV5
	if resp.LoadingExperience != nil {
		metrics = resp.LoadingExperience.Metrics
	}
	return model.FlattenedReport{
		Overview:      Zip(Overview(resp.Id, strategy, resp.LighthouseResult)),
		Statistics:    Zip(FieldStatistics(metrics, f)),
		RuleResults:   Zip(LabData(resp.LighthouseResult)),
		Opportunities: Zip(Opportunities(resp.LighthouseResult, f)),
	}
}

// Overview returns the URL, Strategy and Performance rows, in that order.
func Overview(id, strategy string, lh *pagespeedonline.LighthouseResultV5) []model.LabelValue {
	var score any
	if perf := performance(lh); perf != nil {
		score = perf.Score
	}
	return []model.LabelValue{
		{Label: "URL", Value: HumanizeURL(id)},
		{Label: "Strategy", Value: strategy},
		{Label: "Performance", Value: strconv.Itoa(Percent(score))},
	}
}

// Percent scales a 0..1 score to 0..100, rounding half up.
func Percent(score any) int {
	var v float64
	switch s := score.(type) {
	case float64:
		v = s
	case float32:
		v = float64(s)
	case int:
		v = float64(s)
	case int64:
		v = float64(s)
	case json.Number:
		v, _ = s.Float64()
	case string:
		v, _ = strconv.ParseFloat(s, 64)
	}
	return int(math.Floor(v*100 + 0.5))
}

// FieldStatistics renders each field-experience metric's percentile.
func FieldStatistics(metrics map[string]pagespeedonline.UserPageLoadMetricV5, f DurationFormatter) []model.LabelValue {
	out := make([]model.LabelValue, 0, len(metrics))
	for name, m := range metrics {
		out = append(out, model.LabelValue{Label: name, Value: f.FormatMillis(float64(m.Percentile))})
	}
	return sortByLabel(out)
}

// LabData lists the display value of every audit in the "metrics" group.
func LabData(lh *pagespeedonline.LighthouseResultV5) []model.LabelValue {
	var out []model.LabelValue
	for _, ref := range auditRefs(lh, GroupMetrics) {
		audit, ok := lh.Audits[ref.Id]
		if !ok {
			continue
		}
		out = append(out, model.LabelValue{Label: audit.Title, Value: stripSpace(audit.DisplayValue)})
	}
	return sortByLabel(out)
}

type opportunityDetails struct {
	Type             string  `json:"type"`
	OverallSavingsMs float64 `json:"overallSavingsMs"`
}

// Opportunities lists load opportunities with a positive estimated saving.
func Opportunities(lh *pagespeedonline.LighthouseResultV5, f DurationFormatter) []model.LabelValue {
	var out []model.LabelValue
	for _, ref := range auditRefs(lh, GroupOpportunities) {
		audit, ok := lh.Audits[ref.Id]
		if !ok || len(audit.Details) == 0 {
			continue
		}
		var d opportunityDetails
		if err := json.Unmarshal(audit.Details, &d); err != nil {
			continue
		}
		if d.Type != "opportunity" || d.OverallSavingsMs <= 0 {
			continue
		}
		out = append(out, model.LabelValue{Label: audit.Title, Value: f.FormatMillis(d.OverallSavingsMs)})
	}
	return sortByLabel(out)
}

// Zip folds rows into a Section; a repeated label overwrites the earlier value.
func Zip(rows []model.LabelValue) model.Section {
	var s model.Section
	for _, r := range rows {
		s.Set(r.Label, r.Value)
	}
	return s
}

func performance(lh *pagespeedonline.LighthouseResultV5) *pagespeedonline.LighthouseCategoryV5 {
	if lh == nil || lh.Categories == nil {
		return nil
	}
	return lh.Categories.Performance
}

func auditRefs(lh *pagespeedonline.LighthouseResultV5, group string) []*pagespeedonline.AuditRefs {
	perf := performance(lh)
	if perf == nil {
		return nil
	}
	var refs []*pagespeedonline.AuditRefs
	for _, ref := range perf.AuditRefs {
		if ref != nil && ref.Group == group {
			refs = append(refs, ref)
		}
	}
	return refs
}

func sortByLabel(rows []model.LabelValue) []model.LabelValue {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		// Same set as a JavaScript \s: U+0085 stays, U+FEFF goes.
		if (unicode.IsSpace(r) && r != '\u0085') || r == '\uFEFF' {
			return -1
		}
		return r
	}, s)
}
