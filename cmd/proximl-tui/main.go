package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/proximl/pkg/auth"
	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/config"
	"github.com/rmax-ai/proximl/pkg/resources"
	"github.com/rmax-ai/proximl/pkg/store"
)

// Config
const (
	statusRate     = 15 * time.Second
	maxLines       = 5000
	viewportHeight = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	lineTimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	lineStreamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")) // Purple
)

// entity is a resource whose logs can be streamed.
type entity interface {
	ID() string
	Status() string
	ProjectUUID() string
	Attach(ctx context.Context, handler client.FrameHandler) error
}

type frameMsg client.Frame

type endMsg struct {
	err error
}

type statusMsg struct {
	status string
	err    error
}

type tickMsg time.Time

type model struct {
	kind, id string

	spinner  spinner.Model
	viewport viewport.Model
	lines    []string
	streams  map[string]int

	status  string
	refresh func(ctx context.Context) (string, error)

	ended bool
	err   error
	ready bool
}

func initialModel(kind, id, status string, refresh func(ctx context.Context) (string, error)) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		kind:     kind,
		id:       id,
		spinner:  s,
		viewport: newViewport(100),
		streams:  make(map[string]int),
		status:   status,
		refresh:  refresh,
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if !m.ended {
			cmds = append(cmds, fetchStatus(m.refresh), tick())
		}

	case statusMsg:
		if msg.err == nil {
			m.status = msg.status
		}

	case frameMsg:
		m.ready = true
		f := client.Frame(msg)
		m.streams[f.Stream()]++
		m.lines = append(m.lines, formatLine(f))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		if atBottom {
			m.viewport.GotoBottom()
		}

	case endMsg:
		m.ready = true
		m.ended = true
		m.err = msg.err
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func formatLine(f client.Frame) string {
	ts := f.Time().Local().Format("15:04:05")
	msg := strings.TrimRight(f.Message(), "\n")
	if stream := f.Stream(); stream != "" {
		return fmt.Sprintf("%s %s %s", lineTimeStyle.Render(ts), lineStreamStyle.Render(stream), msg)
	}
	return fmt.Sprintf("%s %s", lineTimeStyle.Render(ts), msg)
}

func (m model) frames() int {
	n := 0
	for _, c := range m.streams {
		n += c
	}
	return n
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s %s...", m.spinner.View(), m.kind, m.id)
	}

	header := headerStyle.Render(fmt.Sprintf("%s %s %s (%s)", m.spinner.View(), m.kind, m.id, m.status))

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Disconnected: %v", m.err))
	case m.ended:
		status = subtleStyle.Render(fmt.Sprintf("Stream ended • %d lines", m.frames()))
	default:
		status = okStyle.Render(fmt.Sprintf("Streaming • %d lines • %d workers", m.frames(), len(m.streams)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

// Commands

func fetchStatus(refresh func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		if refresh == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status, err := refresh(ctx)
		return statusMsg{status: status, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(statusRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// lookup fetches the entity to stream.
func lookup(ctx context.Context, px *resources.ProxiML, kind, id string) (entity, error) {
	switch kind {
	case "dataset":
		return px.Datasets.Get(ctx, id, nil)
	case "model":
		return px.Models.Get(ctx, id, nil)
	case "checkpoint":
		return px.Checkpoints.Get(ctx, id, nil)
	case "volume":
		return px.Volumes.Get(ctx, id, nil)
	case "job":
		return px.Jobs.Get(ctx, id, nil)
	default:
		return nil, fmt.Errorf("unknown entity %q (dataset, model, checkpoint, volume, job)", kind)
	}
}

func run(ctx context.Context, kind, id string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	// The terminal belongs to the UI; warnings go to stderr after it exits.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var archive *store.Store
	var lock auth.Locker
	if cfg.LogArchive != "" {
		if archive, err = store.NewStore(cfg.LogArchive); err != nil {
			return fmt.Errorf("failed to open log archive: %w", err)
		}
		defer archive.Close()
		archive.SetLogger(logger)
		lock = archive
	}

	tokens, err := cfg.TokenProvider(ctx, auth.NewMemoryCache(), lock, logger)
	if err != nil {
		return err
	}
	px := resources.New(client.New(cfg.Client(logger), tokens), resources.WithLogger(logger))

	e, err := lookup(ctx, px, kind, id)
	if err != nil {
		return err
	}
	refresh := func(ctx context.Context) (string, error) {
		current, err := lookup(ctx, px, kind, id)
		if err != nil {
			return "", err
		}
		return current.Status(), nil
	}

	p := tea.NewProgram(initialModel(kind, id, e.Status(), refresh), tea.WithAltScreen(), tea.WithContext(ctx))

	handler := func(f client.Frame) { p.Send(frameMsg(f)) }
	if archive != nil {
		handler = archive.Archive(ctx, store.Source{Entity: kind, EntityID: e.ID(), ProjectUUID: e.ProjectUUID()}, handler)
	}
	go func() {
		p.Send(endMsg{err: e.Attach(ctx, handler)})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(model); ok {
		if m.err != nil {
			return m.err
		}
		fmt.Printf("%s %s: %d lines, status %s\n", kind, id, m.frames(), m.status)
	}
	return nil
}

func main() {
	if len(os.Args) != 3 {
		fmt.Println("Usage: proximl-tui <dataset|model|checkpoint|volume|job> <id>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
