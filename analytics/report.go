package analytics

import (
	"fmt"
	"io"
	"sort"
	"text/template"
	"time"
)

// Report is the template view of a snapshot.
type Report struct {
	UserID   string
	Created  time.Time
	Scalars  []ReportValue
	Daily    []ReportValue
	Weekly   []ReportValue
	Monthly  []ReportValue
	Failures []ReportValue
}

type ReportValue struct {
	Name  string
	Value string
}

var reportFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var reportTemplate = template.Must(template.New("analytics").Funcs(reportFuncs).Parse(OrgTemplate))

// NewReport flattens a snapshot for rendering. Bucket rows are sorted by key.
func NewReport(s *Snapshot) Report {
	r := Report{UserID: s.UserID, Created: s.UpdatedAt}
	for _, name := range s.Metrics() {
		switch name {
		case MetricDailyPnL:
			r.Daily = bucketRows(s, name)
		case MetricWeeklyPnL:
			r.Weekly = bucketRows(s, name)
		case MetricMonthlyPnL:
			r.Monthly = bucketRows(s, name)
		default:
			r.Scalars = append(r.Scalars, ReportValue{Name: name, Value: string(s.Values[name])})
		}
	}
	for name, reason := range s.Failures {
		r.Failures = append(r.Failures, ReportValue{Name: name, Value: reason})
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Name < r.Failures[j].Name })
	return r
}

func bucketRows(s *Snapshot, metric string) []ReportValue {
	m, _ := s.Buckets(metric)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ReportValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, ReportValue{Name: k, Value: fmt.Sprintf("%.2f", m[k])})
	}
	return out
}

// WriteOrg renders the snapshot as an Org-mode document.
func WriteOrg(w io.Writer, s *Snapshot) error {
	if err := reportTemplate.Execute(w, NewReport(s)); err != nil {
		return fmt.Errorf("render analytics report: %w", err)
	}
	return nil
}

const OrgTemplate = `* ANALYTICS: {{.UserID}}
:PROPERTIES:
:USER_ID:     {{.UserID}}
:UPDATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Summary
| Metric | Value |
|--------+-------|
{{- range .Scalars }}
| {{.Name}} | {{.Value}} |
{{- end }}
{{- if .Daily }}

** Daily P/L
| Date | Net P/L |
|------+---------|
{{- range .Daily }}
| {{.Name}} | {{.Value}} |
{{- end }}
{{- end }}
{{- if .Weekly }}

** Weekly P/L
| Week of | Net P/L |
|---------+---------|
{{- range .Weekly }}
| {{.Name}} | {{.Value}} |
{{- end }}
{{- end }}
{{- if .Monthly }}

** Monthly P/L
| Month | Net P/L |
|-------+---------|
{{- range .Monthly }}
| {{.Name}} | {{.Value}} |
{{- end }}
{{- end }}
{{- if .Failures }}

** Failed Metrics
{{- range .Failures }}
- {{.Name}}: {{.Value}}
{{- end }}
{{- end }}
`
