package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath string // Path to write the HTML file
	Title      string // Report title (default: "Deployment Report")
	ReportDir  string // Directory containing report.json
}

// GenerateHTML generates an HTML report from the report directory.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, err := ReadIndex(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = "Deployment Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	html, err := renderHTML(buildHTMLData(index, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	Items         []ItemHTMLData
	TotalDuration string
	SuccessRate   float64
}

// ItemHTMLData contains item data formatted for HTML.
type ItemHTMLData struct {
	ItemEntry
	StatusClass string
	DurationStr string
}

func buildHTMLData(index *Index, cfg HTMLConfig) HTMLData {
	items := make([]ItemHTMLData, len(index.Items))
	for i, it := range index.Items {
		items[i] = ItemHTMLData{
			ItemEntry:   it,
			StatusClass: string(it.Status),
			DurationStr: formatDuration(it.Duration),
		}
	}

	var rate float64
	if index.Summary.Total > 0 {
		rate = float64(index.Summary.Succeeded) / float64(index.Summary.Total) * 100
	}

	var totalMs int64
	if index.EndTime != nil {
		totalMs = index.EndTime.Sub(index.StartTime).Milliseconds()
	}

	return HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		Index:         index,
		Items:         items,
		TotalDuration: formatDuration(&totalMs),
		SuccessRate:   rate,
	}
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", *ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #000000;
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --succeeded: #22c55e;
            --failed: #ef4444;
            --cancelled: #eab308;
            --running: #06b6d4;
            --pending: #6b7280;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
        }
        .header {
            background: var(--bg-secondary);
            border-bottom: 1px solid var(--border-color);
            padding: 16px 24px;
        }
        .header-sub { color: var(--text-muted); font-size: 12px; }
        .summary { display: flex; gap: 16px; margin-top: 8px; font-size: 13px; }
        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        th, td { text-align: left; padding: 8px 24px; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-muted); font-weight: 500; }
        .status-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-right: 6px; }
        .succeeded .status-dot { background: var(--succeeded); }
        .failed .status-dot { background: var(--failed); }
        .cancelled .status-dot { background: var(--cancelled); }
        .running .status-dot { background: var(--running); }
        .pending .status-dot { background: var(--pending); }
        .error { color: var(--failed); }
    </style>
</head>
<body>
    <div class="header">
        <div>{{.Title}}</div>
        <div class="header-sub">run {{.Index.RunID}} &middot; {{.GeneratedAt}}{{if .Index.Server}} &middot; {{.Index.Server}}{{end}}</div>
        <div class="summary">
            <span>{{.Index.Summary.Succeeded}} succeeded</span>
            <span>{{.Index.Summary.Failed}} failed</span>
            {{if .Index.Summary.Cancelled}}<span>{{.Index.Summary.Cancelled}} cancelled</span>{{end}}
            <span>{{printf "%.0f" .SuccessRate}}% success</span>
            <span>{{.TotalDuration}}</span>
        </div>
    </div>
    <table>
        <thead>
            <tr><th>#</th><th>Flow</th><th>Direction</th><th>Instance</th><th>Name</th><th>Target</th><th>Duration</th></tr>
        </thead>
        <tbody>
            {{range .Items}}
            <tr class="{{.StatusClass}}" data-status="{{.StatusClass}}">
                <td>{{.Index}}</td>
                <td><span class="status-dot"></span>{{if .FlowName}}{{.FlowName}}{{else}}{{.FlowID}}{{end}}</td>
                <td>{{.Direction}}</td>
                <td>{{.InstanceID}}</td>
                <td>{{.NewName}}</td>
                <td>{{if .TargetName}}{{.TargetName}}{{if .Resolution}} ({{.Resolution}}){{end}}{{else if .Error}}<span class="error">{{.Error}}</span>{{else}}-{{end}}</td>
                <td>{{.DurationStr}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
</body>
</html>
`
