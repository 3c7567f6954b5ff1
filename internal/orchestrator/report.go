package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/nomenclator/internal/nomenclator"
)

// PrescriptionResult is the prescription step outcome plus what it wrote.
type PrescriptionResult struct {
	JobResult
	Stats nomenclator.DecomposeStats
}

// Report is the outcome of one orchestrator run.
type Report struct {
	// Jobs holds one result per catalog, in catalog order.
	Jobs         []JobResult
	Prescription PrescriptionResult
	Duration     time.Duration
}

// Counts tallies the catalog jobs by final state.
func (r *Report) Counts() (succeeded, failed, skipped int) {
	for _, j := range r.Jobs {
		switch j.Status {
		case Succeeded:
			succeeded++
		case Failed:
			failed++
		case Skipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// Err joins the errors of every failed catalog and of a failed prescription
// step. It is nil when nothing failed; skipped jobs are not failures.
func (r *Report) Err() error {
	var errs []error
	for _, j := range r.Jobs {
		if j.Status == Failed {
			errs = append(errs, j.Err)
		}
	}
	if r.Prescription.Status == Failed {
		errs = append(errs, r.Prescription.Err)
	}
	return errors.Join(errs...)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle = map[JobStatus]lipgloss.Style{
		Succeeded: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		Skipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Running:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
	}
	nameColumn = lipgloss.NewStyle().Width(34)
)

// Render formats the report for a terminal.
func (r *Report) Render() string {
	var b strings.Builder
	succeeded, failed, skipped := r.Counts()

	b.WriteString(titleStyle.Render("Nomenclator conversion summary"))
	b.WriteString("\n\n")
	for _, j := range r.Jobs {
		b.WriteString(renderJob(j))
	}
	b.WriteString(renderJob(r.Prescription.JobResult))

	if r.Prescription.Status == Succeeded {
		names := make([]string, 0, len(r.Prescription.Stats.Rows))
		for name := range r.Prescription.Stats.Rows {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			line := fmt.Sprintf("    %-38s %d rows", name, r.Prescription.Stats.Rows[name])
			b.WriteString(infoStyle.Render(line) + "\n")
		}
		if d := r.Prescription.Stats.ListDate; d != "" {
			b.WriteString(infoStyle.Render("    dump date "+d) + "\n")
		}
	}

	b.WriteString("\n")
	totals := fmt.Sprintf("%d succeeded, %d failed, %d skipped, prescription %s in %s",
		succeeded, failed, skipped, r.Prescription.Status, r.Duration.Round(time.Millisecond))
	if r.Err() != nil {
		b.WriteString(errorStyle.Render(totals))
	} else {
		b.WriteString(titleStyle.Render(totals))
	}
	b.WriteString("\n")
	return b.String()
}

func renderJob(j JobResult) string {
	status := statusStyle[j.Status].Render(fmt.Sprintf("%-9s", j.Status))
	line := "  " + nameColumn.Render(j.Name) + " " + status
	switch j.Status {
	case Succeeded:
		line += infoStyle.Render(" " + j.Duration.Round(time.Millisecond).String())
	case Failed:
		line += " " + errorStyle.Render(j.Err.Error())
	}
	return line + "\n"
}
