// Package app is the live terminal view of a conversion run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/nomenclator/internal/orchestrator"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	headerStyle      = lipgloss.NewStyle().Bold(true)
	jobStatusStyle   = map[orchestrator.JobStatus]lipgloss.Style{
		orchestrator.Pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		orchestrator.Running:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.Succeeded: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.Skipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		orchestrator.Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type jobLine struct {
	Status  orchestrator.JobStatus
	Start   time.Time
	Elapsed time.Duration
	ErrMsg  string
}

// Model shows one line per job and an overall progress bar.
type Model struct {
	names    []string
	jobs     map[string]*jobLine
	finished int

	spinner  spinner.Model
	progress progress.Model
	width    int

	uiMsgChan <-chan any
	cancel    context.CancelFunc

	Report     *orchestrator.Report
	Err        error
	Cancelling bool
	Quitting   bool
}

// NewModel tracks the jobs in names, reading updates from uiMsgChan. cancel
// is called on the first Ctrl+C or q.
func NewModel(names []string, uiMsgChan <-chan any, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	jobs := make(map[string]*jobLine, len(names))
	for _, n := range names {
		jobs[n] = &jobLine{Status: orchestrator.Pending}
	}
	return &Model{
		names:     names,
		jobs:      jobs,
		spinner:   s,
		progress:  progress.New(progress.WithDefaultGradient()),
		uiMsgChan: uiMsgChan,
		cancel:    cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	wait := true

	switch msg := msg.(type) {
	case tea.KeyMsg:
		wait = false
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.Cancelling {
				m.Quitting = true
				return m, tea.Quit
			}
			m.Cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	case tea.WindowSizeMsg:
		wait = false
		m.width = msg.Width
		m.progress.Width = max(0, msg.Width-16)
	case JobStartedMsg:
		if j := m.job(msg.Name); j.Status == orchestrator.Pending {
			j.Status = orchestrator.Running
			j.Start = time.Now()
		}
	case JobFinishedMsg:
		j := m.job(msg.Result.Name)
		if !j.Status.Final() {
			m.finished++
		}
		j.Status = msg.Result.Status
		j.Elapsed = msg.Result.Duration
		if msg.Result.Err != nil {
			j.ErrMsg = msg.Result.Err.Error()
		}
		cmds = append(cmds, m.progress.SetPercent(m.percent()))
	case RunFinishedMsg:
		m.Report = msg.Report
		m.Err = msg.Err
		m.Quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		wait = false
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case progress.FrameMsg:
		wait = false
		progModel, frameCmd := m.progress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.progress = newModel
			cmds = append(cmds, frameCmd)
		}
	default:
		wait = false
	}

	// One reader on the channel at a time: only a message that came from it
	// schedules the next read.
	if wait {
		cmds = append(cmds, m.waitForActivityCmd())
	}
	return m, tea.Batch(cmds...)
}

// job returns the line for name, adding it if the job was not announced.
func (m *Model) job(name string) *jobLine {
	j, ok := m.jobs[name]
	if !ok {
		j = &jobLine{Status: orchestrator.Pending}
		m.jobs[name] = j
		m.names = append(m.names, name)
	}
	return j
}

func (m *Model) percent() float64 {
	if len(m.names) == 0 {
		return 0
	}
	return float64(m.finished) / float64(len(m.names))
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Nomenclator Converter ---"))
	b.WriteString("\n\n")

	if m.Quitting && m.Report != nil {
		b.WriteString(m.Report.Render())
		return b.String()
	}

	activity := "Converting catalogs"
	if m.finished == 0 && !m.anyRunning() {
		activity = "Fetching dump"
	}
	if m.Cancelling {
		activity = "Cancelling, waiting for running jobs"
	}
	b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), activity))
	b.WriteString(progressBarStyle.Render(m.progress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.finished, len(m.names)))

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-34s | %-10s | %s", "Job", "Status", "Elapsed")))
	b.WriteString("\n")
	for _, name := range m.names {
		j := m.jobs[name]
		elapsed := ""
		switch {
		case j.Status.Final() && j.Status != orchestrator.Skipped:
			elapsed = j.Elapsed.Round(time.Millisecond).String()
		case j.Status == orchestrator.Running:
			elapsed = time.Since(j.Start).Round(100 * time.Millisecond).String()
		}
		status := jobStatusStyle[j.Status].Render(fmt.Sprintf("%-10s", j.Status))
		b.WriteString(fmt.Sprintf("%-34s | %s | %s", name, status, elapsed))
		if j.ErrMsg != "" {
			b.WriteString(" " + errorStyle.Render(j.ErrMsg))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(infoStyle.Render("'q' or Ctrl+C to cancel, twice to quit."))
	return b.String()
}

func (m *Model) anyRunning() bool {
	for _, j := range m.jobs {
		if j.Status == orchestrator.Running {
			return true
		}
	}
	return false
}

func (m *Model) waitForActivityCmd() tea.Cmd {
	if m.uiMsgChan == nil {
		return nil
	}
	ch := m.uiMsgChan
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// WorkFunc performs the run, reporting job transitions to obs.
type WorkFunc func(ctx context.Context, obs orchestrator.Observer) (*orchestrator.Report, error)

// Run executes work while showing its progress on out. names are the jobs
// expected, in display order. It returns once work has returned, even if
// the view was closed early.
func Run(ctx context.Context, out io.Writer, names []string, work WorkFunc) (*orchestrator.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ui := make(chan any)
	stop := make(chan struct{})
	result := make(chan RunFinishedMsg, 1)
	obs := &channelObserver{ch: ui, stop: stop}

	go func() {
		report, err := work(ctx, obs)
		msg := RunFinishedMsg{Report: report, Err: err}
		result <- msg
		obs.send(msg)
	}()

	p := tea.NewProgram(NewModel(names, ui, cancel), tea.WithOutput(out))
	_, uiErr := p.Run()
	close(stop)

	res := <-result
	if uiErr != nil {
		return res.Report, errors.Join(res.Err, fmt.Errorf("progress view: %w", uiErr))
	}
	return res.Report, res.Err
}
