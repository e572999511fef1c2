package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/rexpenalty/internal/engine"
	"github.com/Veraticus/rexpenalty/internal/estimator"
	"github.com/Veraticus/rexpenalty/internal/fixture"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// RenderOutcome renders a reprice result.
func RenderOutcome(o *engine.Outcome) string {
	lines := []string{
		row("Charged", BoldStyle.Render(o.Charged.String())),
		row("Total", o.Total.String()),
		row("Minimum", o.Minimum.String()),
		row("Permutation", fmt.Sprintf("#%d of %d valid, %d generated", o.WinnerNumber, o.Valid, o.Generated)),
		row("Form of refund", o.FormOfRefund.String()),
		row("Tax refundable", yesNo(o.TaxRefundable)),
	}
	if o.Highest != nil {
		lines = append(lines, row("Highest fee", o.Highest.Amount.String()))
	}
	if o.Waived {
		lines = append(lines, row("Waived", WarningStyle.Render("yes")))
	}
	if len(o.Rejected) > 0 {
		lines = append(lines, row("Rejected", formatRejected(o.Rejected)))
	}
	lines = append(lines, SubtleStyle.Render("request "+o.RequestID))

	return RenderBox("Reissue penalty", strings.Join(lines, "\n"))
}

// RenderEstimate renders the change and refund fees of an estimate.
func RenderEstimate(r *estimator.Response) string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		TableCellStyle.Width(10).Render(""),
		TableHeaderStyle.Width(22).Render(model.WindowBefore.String()),
		TableHeaderStyle.Width(22).Render(model.WindowAfter.String()),
	)
	lines := []string{
		header,
		windowRow("Change", r.Change),
		windowRow("Refund", r.Refund),
		"",
		SubtleStyle.Render("request " + r.RequestID),
	}
	return RenderBox("Penalty estimate", strings.Join(lines, "\n"))
}

func windowRow(label string, fees estimator.WindowFees) string {
	cells := []string{TableCellStyle.Width(10).Render(label)}
	for _, w := range []model.Window{model.WindowBefore, model.WindowAfter} {
		cells = append(cells, TableCellStyle.Width(22).Render(formatFee(fees.Get(w), fees.FlatPenalty.Intersects(w))))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func formatFee(fee estimator.Fee, flat bool) string {
	text := fixture.DescribeFee(fee)
	switch {
	case fee.NonRefundable:
		return WarningStyle.Render(text)
	case fee.Amount == nil:
		return ErrorStyle.Render(text)
	case flat:
		return text + SubtleStyle.Render(" (flat)")
	default:
		return text
	}
}

// RenderDiagnostics renders recorded diagnostic records, one per line.
func RenderDiagnostics(records []model.DiagnosticRecord, dropped int) string {
	if len(records) == 0 {
		return SubtleStyle.Render("No diagnostics recorded.")
	}

	var b strings.Builder
	b.WriteString(FormatTitle("Diagnostics"))
	b.WriteString("\n")
	for _, rec := range records {
		b.WriteString(formatDiagnostic(rec))
		b.WriteString("\n")
	}
	if dropped > 0 {
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%d records dropped", dropped)))
		b.WriteString("\n")
	}
	return b.String()
}

func formatDiagnostic(rec model.DiagnosticRecord) string {
	mark := SuccessStyle.Render(SuccessIcon)
	if !rec.Passed {
		mark = ErrorStyle.Render(ErrorIcon)
	}

	parts := []string{mark, SubtleStyle.Render(fmt.Sprintf("#%-3d", rec.Permutation)), string(rec.Kind)}
	if rec.FareComponentID != "" {
		parts = append(parts, "fc="+rec.FareComponentID)
	}
	if rec.PricingUnitID != "" {
		parts = append(parts, "pu="+rec.PricingUnitID)
	}
	if rec.ItemNo != 0 {
		parts = append(parts, fmt.Sprintf("record=%d/%d", rec.ItemNo, rec.SeqNo))
	}
	if rec.Check != "" {
		parts = append(parts, "check="+rec.Check)
	}
	if rec.Scope != "" {
		parts = append(parts, "scope="+rec.Scope)
	}
	if rec.Amount != nil {
		parts = append(parts, BoldStyle.Render(rec.Amount.String()))
	}
	if rec.Detail != "" {
		parts = append(parts, SubtleStyle.Render(rec.Detail))
	}
	return strings.Join(parts, " ")
}

// RenderVerdict renders one scenario result line, followed by its failures.
func RenderVerdict(v fixture.Verdict) string {
	if v.Passed() {
		return FormatSuccess(v.Scenario)
	}
	lines := []string{FormatError(v.Scenario)}
	for _, f := range v.Failures {
		lines = append(lines, "    "+SubtleStyle.Render(f))
	}
	return strings.Join(lines, "\n")
}

// RenderSummary renders the totals of a batch run.
func RenderSummary(passed, failed, total int, interrupted bool) string {
	lines := []string{
		row("Passed", SuccessStyle.Render(strconv.Itoa(passed))),
		row("Failed", failedCount(failed)),
	}
	if skipped := total - passed - failed; skipped > 0 {
		lines = append(lines, row("Not run", WarningStyle.Render(strconv.Itoa(skipped))))
	}
	title := "Batch summary"
	if interrupted {
		title += " (interrupted)"
	}
	return RenderBox(title, strings.Join(lines, "\n"))
}

func failedCount(n int) string {
	if n == 0 {
		return strconv.Itoa(n)
	}
	return ErrorStyle.Render(strconv.Itoa(n))
}

func formatRejected(rejected map[string]int) string {
	checks := make([]string, 0, len(rejected))
	for check := range rejected {
		checks = append(checks, check)
	}
	sort.Strings(checks)

	parts := make([]string, 0, len(checks))
	for _, check := range checks {
		parts = append(parts, fmt.Sprintf("%s:%d", check, rejected[check]))
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
