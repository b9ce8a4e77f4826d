package cli

import (
	"fmt"
	"strings"

	"github.com/spendworth/sift/internal/engine"
	"github.com/spendworth/sift/internal/model"
)

// RenderPredictions formats calibrated predictions for terminal display.
func RenderPredictions(predictions []model.CalibratedPrediction, coldStart bool) string {
	var b strings.Builder

	if coldStart {
		b.WriteString(FormatWarning("No trained model yet; suggestions are pattern-based"))
		b.WriteString("\n\n")
	}

	for i, p := range predictions {
		line := fmt.Sprintf("%d. %s (%.1f%%, %s)", i+1, p.Category, p.ConfidencePct, p.ConfidenceLevel)
		switch p.ConfidenceLevel {
		case model.ConfidenceHigh:
			b.WriteString(SuccessStyle.Render(line))
		case model.ConfidenceMedium:
			b.WriteString(InfoStyle.Render(line))
		default:
			b.WriteString(SubtleStyle.Render(line))
		}
		b.WriteString("\n")
		b.WriteString(SubtleStyle.Render("   " + p.Explanation))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderWarnings formats error-detection warnings.
func RenderWarnings(warnings []model.Warning) string {
	if len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Warnings"))
	b.WriteString("\n")
	for _, w := range warnings {
		var line string
		switch w.Severity {
		case model.SeverityError:
			line = FormatError(w.Message)
		case model.SeverityWarning:
			line = FormatWarning(w.Message)
		default:
			line = FormatInfo(w.Message)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if w.Suggestion != "" {
			b.WriteString(SubtleStyle.Render("   " + w.Suggestion))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderStats formats feedback statistics.
func RenderStats(stats *model.FeedbackStats) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Total predictions:  %d\n", stats.TotalPredictions))
	b.WriteString(fmt.Sprintf("Accepted:           %d\n", stats.AcceptedCount))
	b.WriteString(fmt.Sprintf("Corrected:          %d\n", stats.CorrectedCount))
	b.WriteString(fmt.Sprintf("Rejected:           %d\n", stats.RejectedCount))
	b.WriteString(fmt.Sprintf("Acceptance rate:    %.1f%%\n", stats.AcceptanceRate))

	if len(stats.MostCorrected) > 0 {
		b.WriteString("\n")
		b.WriteString(BoldStyle.Render("Most corrected"))
		b.WriteString("\n")
		for _, c := range stats.MostCorrected {
			b.WriteString(fmt.Sprintf("  %s → %s (%d)\n", c.Predicted, c.Actual, c.Count))
		}
	}

	return RenderBox("Feedback", b.String())
}

// RenderDashboard formats the combined dashboard view.
func RenderDashboard(d *engine.Dashboard) string {
	var b strings.Builder

	b.WriteString(FormatTitle("Dashboard for " + d.UserID))
	b.WriteString("\n\n")

	var acc strings.Builder
	acc.WriteString(fmt.Sprintf("Overall accuracy:   %.1f%%\n", d.Accuracy.OverallAccuracy*100))
	acc.WriteString(fmt.Sprintf("Predictions:        %d (%d correct)\n",
		d.Accuracy.TotalPredictions, d.Accuracy.CorrectPredictions))
	for _, bin := range d.Accuracy.Calibration {
		acc.WriteString(fmt.Sprintf("%-18s stated %.0f%%, actual %.0f%% (n=%d)\n",
			bin.Range, bin.AvgConfidence*100, bin.ActualAccuracy*100, bin.Count))
	}
	b.WriteString(RenderBox("Accuracy", acc.String()))
	b.WriteString("\n")

	b.WriteString(RenderStats(d.Feedback))
	b.WriteString("\n")

	var retr strings.Builder
	if d.Retraining.LastTrainedAt != nil {
		retr.WriteString(fmt.Sprintf("Last trained:       %s\n",
			d.Retraining.LastTrainedAt.Format("2006-01-02")))
	} else {
		retr.WriteString("Last trained:       never\n")
	}
	if d.Retraining.ShouldRetrain {
		retr.WriteString(WarningStyle.Render("Retraining recommended:"))
		retr.WriteString("\n")
		for _, reason := range d.Retraining.Reasons {
			retr.WriteString("  " + reason + "\n")
		}
	} else {
		retr.WriteString(SuccessStyle.Render("Model up to date"))
		retr.WriteString("\n")
	}
	retr.WriteString(d.Improvement.Message)
	retr.WriteString("\n")
	b.WriteString(RenderBox("Training", retr.String()))

	return b.String()
}

// RenderModelInfo formats the stored model lineage.
func RenderModelInfo(infos []model.ModelInfo) string {
	if len(infos) == 0 {
		return FormatInfo("No trained models")
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render("Version  Stage       Accuracy  Created"))
	b.WriteString("\n")
	for _, info := range infos {
		line := fmt.Sprintf("%-8d %-11s %-9.3f %s",
			info.Version, info.Stage, info.Metrics["accuracy"],
			info.CreatedAt.Format("2006-01-02 15:04"))
		if info.Stage == model.StageProduction {
			b.WriteString(SuccessStyle.Render(line))
		} else {
			b.WriteString(TableCellStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}
