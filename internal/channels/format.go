package channels

import (
	"fmt"
	"html"
	"strings"

	"duewatch/internal/types"
)

// maxItemizedLines caps the itemized payment lines in a telegram message.
// Full detail always goes to email; telegram gets a digest.
const maxItemizedLines = 5

// FormatTelegram renders a payload as a telegram Markdown message. The
// switch over the payload kind is exhaustive: an unknown kind is a payload
// validation error, never silently dropped.
func FormatTelegram(p types.Payload) (string, error) {
	switch p.Kind {
	case types.PayloadDailySummary:
		return formatSummaryTelegram(p.DailySummary), nil
	case types.PayloadSystemAlert:
		return formatAlertTelegram(p.SystemAlert), nil
	default:
		return "", types.NewAppError(types.ErrCodeValidationPayload,
			fmt.Sprintf("no telegram formatter for payload kind %q", p.Kind), nil)
	}
}

// FormatEmail renders a payload as an email subject and HTML body.
func FormatEmail(p types.Payload) (subject, htmlBody string, err error) {
	switch p.Kind {
	case types.PayloadDailySummary:
		s := p.DailySummary
		return fmt.Sprintf("Daily payment summary - %s", s.SummaryDate), formatSummaryHTML(s), nil
	case types.PayloadSystemAlert:
		a := p.SystemAlert
		return fmt.Sprintf("[%s] System alert: %s", strings.ToUpper(string(a.Severity)), a.AlertType), formatAlertHTML(a), nil
	default:
		return "", "", types.NewAppError(types.ErrCodeValidationPayload,
			fmt.Sprintf("no email formatter for payload kind %q", p.Kind), nil)
	}
}

func formatSummaryTelegram(s *types.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily Summary - %s*\n\n", s.SummaryDate)

	if s.Pending.Count > 0 {
		fmt.Fprintf(&b, "*Due today (%d)*\n", s.Pending.Count)
		fmt.Fprintf(&b, "Total: $%s\n\n", s.Pending.TotalAmount.StringFixed(2))
		for i, item := range s.Pending.Items {
			if i == maxItemizedLines {
				fmt.Fprintf(&b, "  ... and %d more\n", s.Pending.Count-maxItemizedLines)
				break
			}
			fmt.Fprintf(&b, "  - %s\n    $%s - %s\n", item.Description, item.Amount.StringFixed(2), item.PaymentMethod)
		}
		b.WriteString("\n")
	}

	if s.PaidToday.Count > 0 {
		fmt.Fprintf(&b, "*Paid today (%d)*\n", s.PaidToday.Count)
		fmt.Fprintf(&b, "Total: $%s\n\n", s.PaidToday.TotalAmount.StringFixed(2))
		for i, item := range s.PaidToday.Items {
			if i == maxItemizedLines {
				fmt.Fprintf(&b, "  ... and %d more\n", s.PaidToday.Count-maxItemizedLines)
				break
			}
			fmt.Fprintf(&b, "  - %s\n    $%s\n", item.Description, item.Amount.StringFixed(2))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatAlertTelegram(a *types.SystemAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*System Alert: %s*\n", a.AlertType)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "%s\n", a.Message)
	fmt.Fprintf(&b, "Detected at: %s", a.DetectedAt.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

func formatSummaryHTML(s *types.DailySummary) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>Daily Summary - %s</h1>", html.EscapeString(s.SummaryDate))

	if s.Pending.Count > 0 {
		fmt.Fprintf(&b, "<h2>Due today (%d)</h2>", s.Pending.Count)
		fmt.Fprintf(&b, "<p><strong>Total: $%s</strong></p><ul>", s.Pending.TotalAmount.StringFixed(2))
		for _, item := range s.Pending.Items {
			fmt.Fprintf(&b, "<li>%s - $%s (%s)</li>",
				html.EscapeString(item.Description),
				item.Amount.StringFixed(2),
				html.EscapeString(item.PaymentMethod),
			)
		}
		b.WriteString("</ul>")
	}

	if s.PaidToday.Count > 0 {
		fmt.Fprintf(&b, "<h2>Paid today (%d)</h2>", s.PaidToday.Count)
		fmt.Fprintf(&b, "<p><strong>Total: $%s</strong></p><ul>", s.PaidToday.TotalAmount.StringFixed(2))
		for _, item := range s.PaidToday.Items {
			fmt.Fprintf(&b, "<li>%s - $%s</li>",
				html.EscapeString(item.Description),
				item.Amount.StringFixed(2),
			)
		}
		b.WriteString("</ul>")
	}

	if s.Pending.Count == 0 && s.PaidToday.Count == 0 {
		b.WriteString("<p>No activity for today</p>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func formatAlertHTML(a *types.SystemAlert) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>System Alert: %s</h1>", html.EscapeString(a.AlertType))
	fmt.Fprintf(&b, "<p><strong>Severity:</strong> %s</p>", html.EscapeString(string(a.Severity)))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(a.Message))
	fmt.Fprintf(&b, "<p><small>Detected at %s</small></p>", a.DetectedAt.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("</body></html>")
	return b.String()
}
