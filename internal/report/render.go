package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

const reportTemplate = `# Trade Log Forensic Report

Generated: {{ rfc3339 .GeneratedAt }}
{{- if .TradeCount }}
Log window: {{ rfc3339 .From }} to {{ rfc3339 .To }}
{{- end }}

## Summary

| Metric | Value |
| --- | --- |
| Log entries | {{ .TradeCount }} |
| Closed round trips | {{ .ClosedTrades }} |
| Open positions at end of log | {{ .OpenPositions }} |
| Net P/L | {{ usdc .NetPnLUSDC }} |
| Gross profit | {{ usdc .GrossProfitUSDC }} |
| Gross loss | {{ usdc .GrossLossUSDC }} |
| Total fees | {{ usdc .TotalFeesUSDC }} |
| Largest win | {{ usdc .LargestWinUSDC }} |
| Largest loss | {{ usdc .LargestLossUSDC }} |
| Hold (min / avg / median / max) | {{ .MinHold }} / {{ .AvgHold }} / {{ .MedianHold }} / {{ .MaxHold }} |

## Wallet

| Metric | Value |
| --- | --- |
| Start balance | {{ usdc .StartBalanceUSDC }} |
| End balance | {{ usdc .EndBalanceUSDC }} |
| Max drawdown | {{ usdc .MaxDrawdownUSDC }} |

## Survivorship check

Win rate over closed trades only: **{{ pct .WinRateClosedPct }}**.
Win rate with the {{ .OpenPositions }} still-open position(s) counted as losses: **{{ pct .WinRateAdjustedPct }}**.
{{- if gt .OpenPositions 0 }}

> A report quoting only the first number overstates performance while
> positions remain open: that is survivorship bias.
{{- end }}

## Closed trades
{{ if .Trips }}
| Market | P/L (USDC) | Hold | Exit reason |
| --- | --- | --- | --- |
{{- range .Trips }}
| {{ .Question }} | {{ usdc .PnLUSDC }} | {{ .Hold }} | {{ .ExitReason }} |
{{- end }}
{{ else }}
No closed trades in the log.
{{ end }}
## Anomalies
{{ if .Anomalies }}
{{- range .Anomalies }}
- entry {{ .Line }}: **{{ .Kind }}**: {{ .Detail }}
{{- end }}
{{ else }}
None detected.
{{ end }}`

var tmpl = template.Must(template.New("forensic").Funcs(template.FuncMap{
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"usdc":    func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pct":     func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).Parse(reportTemplate))

// Render produces the markdown report body.
func Render(s *Stats) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the report into dir as forensic_<timestamp>.md and returns
// the file path.
func Write(dir string, s *Stats) (string, error) {
	body, err := Render(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("forensic_%s.md", s.GeneratedAt.UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
