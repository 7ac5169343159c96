/**
 * HTML rendering of the reliability report
 *
 * Produces the self-contained page the reporting collaborator serves or
 * archives: a per-field statistics table sorted worst-first, with the
 * improvement recommendations underneath.
 */

package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"

	"github.com/formguard/extraction-worker/internal/reliability"
)

type tableRow struct {
	Field          string
	Documents      int
	Reliability    float64
	MatchRate      string
	ValidRate      string
	EmptyRate      string
	CorrectionRate string
	Class          string
}

type htmlData struct {
	Timestamp       string
	DocumentCount   int
	Rows            []tableRow
	Recommendations []string
}

var reportTemplate = template.Must(template.New("reliability").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Extraction Reliability Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        h1, h2 { color: #333; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .recommendations { background-color: #f8f9fa; padding: 15px; border-radius: 5px; }
        .low-reliability { background-color: #ffdddd; }
        .medium-reliability { background-color: #ffffcc; }
        .high-reliability { background-color: #ddffdd; }
    </style>
</head>
<body>
    <h1>Extraction Reliability Report</h1>
    <p>Generated on: {{.Timestamp}}</p>
    <p>Total documents analyzed: {{.DocumentCount}}</p>

    <h2>Field Reliability Statistics</h2>
    <table>
        <tr>
            <th>Field</th>
            <th>Documents</th>
            <th>Reliability</th>
            <th>Match Rate</th>
            <th>Valid Format</th>
            <th>Empty Rate</th>
            <th>Correction Rate</th>
        </tr>
        {{range .Rows}}
        <tr class="{{.Class}}">
            <td>{{.Field}}</td>
            <td>{{.Documents}}</td>
            <td>{{printf "%.1f%%" .Reliability}}</td>
            <td>{{.MatchRate}}</td>
            <td>{{.ValidRate}}</td>
            <td>{{.EmptyRate}}</td>
            <td>{{.CorrectionRate}}</td>
        </tr>
        {{end}}
    </table>

    <h2>Improvement Recommendations</h2>
    <div class="recommendations">
        {{if .Recommendations}}
        <ul>
            {{range .Recommendations}}<li>{{.}}</li>
            {{end}}
        </ul>
        {{else}}
        <p>No specific recommendations at this time.</p>
        {{end}}
    </div>
</body>
</html>
`))

// RenderHTML renders the reliability report as a standalone HTML page.
func RenderHTML(r *reliability.ReliabilityReport) ([]byte, error) {
	data := htmlData{
		Timestamp:       r.GeneratedAt.Format("2006-01-02 15:04:05"),
		DocumentCount:   r.DocumentCount,
		Recommendations: r.Recommendations,
	}

	for field, stats := range r.PerField {
		reliabilityPct := stats.ReliabilityScore * 100
		row := tableRow{
			Field:          field,
			Documents:      stats.SampleCount,
			Reliability:    reliabilityPct,
			MatchRate:      fmt.Sprintf("%.1f%%", stats.MatchRate*100),
			ValidRate:      rate(stats.Formats.Valid, stats.SampleCount),
			EmptyRate:      rate(stats.Formats.Empty, stats.SampleCount),
			CorrectionRate: fmt.Sprintf("%.1f%%", (1-stats.MatchRate)*100),
			Class:          rowClass(reliabilityPct),
		}
		data.Rows = append(data.Rows, row)
	}

	// Least reliable fields first so problems surface at the top.
	sort.Slice(data.Rows, func(i, j int) bool {
		if data.Rows[i].Reliability != data.Rows[j].Reliability {
			return data.Rows[i].Reliability < data.Rows[j].Reliability
		}
		return data.Rows[i].Field < data.Rows[j].Field
	})

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render reliability report: %w", err)
	}
	return buf.Bytes(), nil
}

func rate(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func rowClass(reliabilityPct float64) string {
	switch {
	case reliabilityPct < 50:
		return "low-reliability"
	case reliabilityPct < 75:
		return "medium-reliability"
	}
	return "high-reliability"
}
