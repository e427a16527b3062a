// Command busmon is a live dashboard over a running busd: the current name
// table on one side, a scrolling notification feed on the other. Ported
// from the teacher's cmd/pw-tui bubbletea Model (Init/Update/View, a
// periodic refresh tea.Tick, tea.KeyMsg dispatch) with lipgloss replacing
// the teacher's hand-rolled box-drawing-character borders.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/wire"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	changeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

const maxFeedLines = 200

// model is the bubbletea model for busmon: the current name table and a
// bounded scrollback of notification lines.
type model struct {
	client *busMonClient
	names  []wire.ParsedRecord
	feed   []string
	status string
	width  int
	height int
	quit   bool
}

type refreshMsg struct{}
type eventMsg notify.Event
type errMsg struct{ err error }

func newModel(c *busMonClient) model {
	return model{client: c, status: "connecting", width: 100, height: 30}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		listenForEvents(m.client),
		tea.Tick(2*time.Second, func(time.Time) tea.Msg { return refreshMsg{} }),
	)
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		records, err := m.client.list(false, true, true, false)
		if err != nil {
			return errMsg{err}
		}
		return recordsMsg(records)
	}
}

type recordsMsg []wire.ParsedRecord

func listenForEvents(c *busMonClient) tea.Cmd {
	return func() tea.Msg {
		e, err := c.nextEvent()
		if err != nil {
			return errMsg{err}
		}
		return eventMsg(e)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		case "r":
			m.status = "refreshing..."
			return m, m.refreshCmd()
		}
		return m, nil

	case refreshMsg:
		return m, tea.Batch(m.refreshCmd(), tea.Tick(2*time.Second, func(time.Time) tea.Msg { return refreshMsg{} }))

	case recordsMsg:
		m.names = msg
		m.status = fmt.Sprintf("updated %s", time.Now().Format("15:04:05"))
		return m, nil

	case eventMsg:
		line := formatFeedLine(notify.Event(msg))
		m.feed = append(m.feed, line)
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		return m, listenForEvents(m.client)

	case errMsg:
		m.status = "error: " + msg.err.Error()
		return m, nil
	}
	return m, nil
}

func formatFeedLine(e notify.Event) string {
	ts := time.Now().Format("15:04:05")
	switch e.Kind {
	case notify.KindAdd:
		return fmt.Sprintf("[%s] %s %-30s owner=%d", ts, addStyle.Render("ADD   "), e.Name, e.NewOwner)
	case notify.KindRemove:
		return fmt.Sprintf("[%s] %s %-30s owner=%d", ts, removeStyle.Render("REMOVE"), e.Name, e.OldOwner)
	case notify.KindChange:
		return fmt.Sprintf("[%s] %s %-30s %d -> %d", ts, changeStyle.Render("CHANGE"), e.Name, e.OldOwner, e.NewOwner)
	default:
		return fmt.Sprintf("[%s] %s", ts, e.String())
	}
}

func (m model) View() string {
	if m.quit {
		return ""
	}

	half := m.width/2 - 4
	if half < 20 {
		half = 20
	}

	namesBody := headerStyle.Render("NAMES") + "\n"
	if len(m.names) == 0 {
		namesBody += dimStyle.Render("(none)")
	}
	for _, r := range m.names {
		if r.HasName {
			namesBody += fmt.Sprintf("%-30s owner=%d\n", r.Name, r.ID)
		}
	}

	feedBody := headerStyle.Render("EVENTS") + "\n"
	if len(m.feed) == 0 {
		feedBody += dimStyle.Render("(waiting for events)")
	}
	start := 0
	if len(m.feed) > m.height-6 && m.height > 6 {
		start = len(m.feed) - (m.height - 6)
	}
	for _, line := range m.feed[start:] {
		feedBody += line + "\n"
	}

	left := borderStyle.Width(half).Render(namesBody)
	right := borderStyle.Width(half).Render(feedBody)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	footer := dimStyle.Render(fmt.Sprintf("q: quit  r: refresh  |  %s", m.status))

	return body + "\n" + footer
}

func main() {
	socketPath := flag.String("socket", "", "busd Unix socket path")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(level, true)

	client, err := dialBusMon(*socketPath, logger)
	if err != nil {
		log.Fatalf("busmon: %v", err)
	}
	defer client.Close()

	p := tea.NewProgram(newModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("busmon: %v", err)
	}
}
