package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"
	"github.com/guptarohit/asciigraph"
	"github.com/mattn/go-isatty"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/fetcher"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

const (
	DefaultInterval = 30 * time.Second
	historyPoints   = 60
	graphHeight     = 6
)

var ErrNotTerminal = errors.New("watch requires an interactive terminal")

// Source is the part of the fetcher the monitor drives.
type Source interface {
	FetchResult(ctx context.Context, sourceURL string, opts fetcher.Options) fetcher.Result
}

// Notifier raises a desktop notification. Critical notifications should
// also make a sound.
type Notifier interface {
	Notify(title, message string, critical bool) error
}

type desktopNotifier struct{}

func (desktopNotifier) Notify(title, message string, critical bool) error {
	if critical {
		return beeep.Alert(title, message, "")
	}
	return beeep.Notify(title, message, "")
}

type Options struct {
	URL          string
	Interval     time.Duration
	NoColor      bool
	Continuous   bool
	FetchOptions fetcher.Options
	Status       output.StatusOptions

	// Reload re-reads the configuration after a watched file changes.
	Reload      func() (*config.Config, error)
	ConfigPaths []string
	Notifier    Notifier
	Out         io.Writer
}

type Monitor struct {
	options Options
	source  Source
}

func New(source Source, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = desktopNotifier{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Monitor{options: opts, source: source}
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.options.Continuous {
		return m.startTUI(ctx)
	}
	return m.runOnce(ctx)
}

func (m *Monitor) startTUI(ctx context.Context) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return ErrNotTerminal
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reloads chan configMsg
	if m.options.Reload != nil && len(m.options.ConfigPaths) > 0 {
		reloads = make(chan configMsg, 1)
		go func() {
			err := config.Watch(ctx, m.options.ConfigPaths, func() {
				cfg, err := m.options.Reload()
				select {
				case reloads <- configMsg{cfg: cfg, err: err}:
				case <-ctx.Done():
				}
			})
			if err != nil {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	p := tea.NewProgram(
		newModel(ctx, m.source, m.options, reloads),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runOnce prints a single status line, the same one the statusline command
// renders, and returns.
func (m *Monitor) runOnce(ctx context.Context) error {
	res := m.source.FetchResult(ctx, m.options.URL, m.options.FetchOptions)
	if res.Degraded {
		logger.Warn("dashboard unavailable", "url", logger.SafeURL(m.options.URL), "error", res.Err)
	}
	_, err := fmt.Fprintln(m.options.Out, output.StatusLine(res.Record, m.options.Status))
	return err
}

type model struct {
	ctx     context.Context
	source  Source
	options Options
	reloads <-chan configMsg

	spinner  spinner.Model
	fetching bool
	result   fetcher.Result
	fetches  int
	costs    []float64
	level    calculator.Level
	notice   string
	err      error
	width    int
}

type tickMsg time.Time

type resultMsg struct {
	result fetcher.Result
}

type configMsg struct {
	cfg *config.Config
	err error
}

type notifyErrMsg struct {
	err error
}

func newModel(ctx context.Context, source Source, opts Options, reloads <-chan configMsg) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{
		ctx:      ctx,
		source:   source,
		options:  opts,
		reloads:  reloads,
		spinner:  s,
		fetching: true,
		level:    calculator.LevelUnknown,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.options.Interval),
		m.fetch(),
		m.spinner.Tick,
		m.waitForReload(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m.startFetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		next, cmd := m.startFetch()
		return next, tea.Batch(tickCmd(m.options.Interval), cmd)

	case resultMsg:
		m.fetching = false
		m.fetches++
		m.result = msg.result
		m.err = msg.result.Err
		if !msg.result.Degraded {
			m.costs = append(m.costs, msg.result.Record.TodayCost)
			if len(m.costs) > historyPoints {
				m.costs = m.costs[len(m.costs)-historyPoints:]
			}
		}
		cmd := m.checkThresholds()
		return m, cmd

	case configMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("config reload failed: %v", msg.err)
			return m, m.waitForReload()
		}
		m.applyConfig(msg.cfg)
		m.notice = "config reloaded " + time.Now().Format("15:04:05")
		next, cmd := m.startFetch()
		return next, tea.Batch(cmd, next.(model).waitForReload())

	case notifyErrMsg:
		logger.Debug("desktop notification failed", "error", msg.err)

	case spinner.TickMsg:
		if !m.fetching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) startFetch() (tea.Model, tea.Cmd) {
	if m.fetching {
		return m, nil
	}
	m.fetching = true
	return m, tea.Batch(m.fetch(), m.spinner.Tick)
}

func (m *model) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	prompt := m.options.Status.Prompt
	loc := m.options.Status.Location
	m.options.Status = output.StatusOptionsFromConfig(cfg)
	m.options.Status.Prompt = prompt
	m.options.Status.Location = loc
	if cfg.FetchURL != "" {
		m.options.URL = cfg.FetchURL
	}
	m.options.FetchOptions.Timeout = cfg.Fetch.Timeout.Std()
	m.options.FetchOptions.RetryAttempts = cfg.Fetch.RetryAttempts
	m.options.FetchOptions.RetryDelay = cfg.Fetch.RetryDelay.Std()
	m.options.FetchOptions.Headers = cfg.Fetch.Headers
}

// checkThresholds notifies when the level rises to warning or critical,
// including on the first result. Degraded results keep the previous level.
func (m *model) checkThresholds() tea.Cmd {
	if m.result.Degraded {
		return nil
	}
	calc := calculator.New(m.options.Status.Warning, m.options.Status.Critical)
	prev := m.level
	m.level = calc.Level(m.result.Record)
	if m.level.Rank() <= prev.Rank() || m.level.Rank() < calculator.LevelWarning.Rank() {
		return nil
	}

	rec := m.result.Record
	critical := m.level == calculator.LevelCritical
	title := "Claude API cost warning"
	if critical {
		title = "Claude API cost critical"
	}
	body := fmt.Sprintf("Today's cost $%s is %.1f%% of the $%s daily limit",
		output.FormatMoney(rec.TodayCost), rec.Percentage(), output.FormatMoney(rec.CostLimit))
	notifier := m.options.Notifier
	return func() tea.Msg {
		if err := notifier.Notify(title, body, critical); err != nil {
			return notifyErrMsg{err: err}
		}
		return nil
	}
}

func (m model) View() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(1).
		MarginBottom(1)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	if m.options.NoColor {
		headerStyle = lipgloss.NewStyle()
		boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1)
		dimStyle = lipgloss.NewStyle()
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Claude API Usage Monitor"))
	b.WriteString("\n\n")

	if m.fetches == 0 {
		b.WriteString(m.spinner.View() + " fetching " + logger.SafeURL(m.options.URL))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("Press 'q' to quit"))
		return b.String()
	}

	status := m.options.Status
	status.Color = status.Color && !m.options.NoColor
	status.MaxLength = 0
	line := output.StatusLine(m.result.Record, status)
	if m.result.Degraded {
		line += "\n" + output.IconOffline
	}
	b.WriteString(boxStyle.Render(line + "\n\n" + m.detail()))
	b.WriteString("\n")

	if len(m.costs) >= 2 {
		b.WriteString(asciigraph.Plot(m.costs,
			asciigraph.Height(graphHeight),
			asciigraph.Width(m.graphWidth()),
			asciigraph.Precision(2),
			asciigraph.Caption("today's cost (USD)"),
		))
		b.WriteString("\n\n")
	}

	if m.err != nil {
		b.WriteString(fmt.Sprintf("Last error: %v\n", m.err))
	}
	if m.notice != "" {
		b.WriteString(dimStyle.Render(m.notice) + "\n")
	}

	footer := fmt.Sprintf("source: %s · every %s · Press 'q' to quit, 'r' to refresh", m.result.Source, m.options.Interval)
	if m.fetching {
		footer = m.spinner.View() + " " + footer
	}
	b.WriteString(dimStyle.Render(footer))
	return b.String()
}

func (m model) detail() string {
	rec := m.result.Record
	limit := "∞"
	if rec.HasLimit() {
		limit = "$" + output.FormatMoney(rec.CostLimit)
	}
	updated := "-"
	if !rec.LastUpdate.IsZero() {
		updated = rec.LastUpdate.Format("15:04:05")
	}
	return fmt.Sprintf(
		"Requests: %d\nTokens: %s\nCost: $%s / %s\nTrend: %s\nLast Update: %s",
		rec.RequestCount,
		output.FormatTokens(rec.TokenCount),
		output.FormatMoney(rec.TodayCost),
		limit,
		calculator.Trend(m.costs, 5),
		updated,
	)
}

func (m model) graphWidth() int {
	if m.width > 20 {
		return m.width - 12
	}
	return historyPoints
}

func (m model) fetch() tea.Cmd {
	ctx, source, url, opts := m.ctx, m.source, m.options.URL, m.options.FetchOptions
	return func() tea.Msg {
		return resultMsg{result: source.FetchResult(ctx, url, opts)}
	}
}

func (m model) waitForReload() tea.Cmd {
	if m.reloads == nil {
		return nil
	}
	ch := m.reloads
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
