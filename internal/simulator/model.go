// Package simulator is a desktop stand-in for the appliance: a bubbletea
// program that shows the character panel and the modifier LED and types
// the host keyboard into the simulated key matrix.
package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stlalpha/cardbasic/internal/blink"
	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/display"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/keyboard"
	"github.com/stlalpha/cardbasic/internal/logging"
)

// frameInterval is how often the view is refreshed from the panel.
const frameInterval = 50 * time.Millisecond

// Options describe the simulated board.
type Options struct {
	Rows, Cols    int
	LongThreshold uint
	RepeatDelay   uint
	RepeatRate    uint
	PollInterval  time.Duration
	Blinker       *blink.Blinker // nil disables blinking
	Title         string
	HostOptions   []host.Option
	Interpreter   host.Interpreter
}

type tickMsg time.Time

type doneMsg struct{ err error }

// Model is the BubbleTea model for the simulator.
type Model struct {
	panel  *display.Recorder
	kb     *keyboard.Keyboard
	host   *host.Host
	interp host.Interpreter
	title  string

	ctx    context.Context
	cancel context.CancelFunc

	keys     KeyMap
	help     help.Model
	showHelp bool
	status   string
	err      error
	quitting bool
}

// New builds the board: a panel recorder, the keyboard and a host wired to
// them. Nothing runs until the program starts.
func New(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "CardBASIC"
	}
	var phase func() bool
	if opts.Blinker != nil {
		phase = opts.Blinker.Phase
	}

	panel := display.NewRecorder(opts.Rows, opts.Cols)
	kb := keyboard.NewKeyboard(opts.LongThreshold,
		keyboard.WithRepeat(opts.RepeatDelay, opts.RepeatRate),
		keyboard.WithIndicator(panel, phase))
	term := console.NewTerminal(panel, opts.Rows, opts.Cols,
		console.WithInput(kb),
		console.WithBlink(phase),
		console.WithPollInterval(opts.PollInterval))
	h := host.New(term, append([]host.Option{host.WithName("simulator")}, opts.HostOptions...)...)

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		panel:  panel,
		kb:     kb,
		host:   h,
		interp: opts.Interpreter,
		title:  opts.Title,
		ctx:    ctx,
		cancel: cancel,
		keys:   DefaultKeyMap(),
		help:   help.New(),
	}
}

// Err returns why the appliance stopped, if it failed.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.SetWindowTitle(m.title+" simulator"), tick(), m.run())
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// run powers the appliance on. It returns when the interpreter stops.
func (m Model) run() tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: m.host.Run(m.ctx, m.interp)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case doneMsg:
		m.err = msg.err
		m.quitting = true
		m.cancel()
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Break):
			m.kb.Typist.Type(keyboard.FnBreak)
			return m, nil
		}
		codes := keyCodes(msg)
		m.status = ""
		if len(codes) == 0 {
			m.status = fmt.Sprintf("%s is not on the keyboard", msg.String())
		}
		for _, c := range codes {
			if !m.kb.Typist.Type(c) {
				m.status = fmt.Sprintf("no key for %q", msg.String())
				logging.Debug("simulator: %s", m.status)
			}
		}
	}
	return m, nil
}

var (
	screenStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Foreground(lipgloss.Color("14")).
			Background(lipgloss.Color("0")).
			Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(ledView(m.panel.LED()))
	b.WriteByte('\n')
	b.WriteString(screenStyle.Render(strings.Join(m.panel.Lines(), "\n")))
	b.WriteByte('\n')
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteByte('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// ledView draws the modifier LED as a coloured swatch and names the
// modifier it shows.
func ledView(c keyboard.Color) string {
	if c == keyboard.Off {
		return dimStyle.Render("○ ----")
	}
	name := "FN"
	switch {
	case c.R > 0:
		name = "SHIFT"
	case c.G > 0:
		name = "SYM"
	}
	swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(ledHex(c)))
	return swatch.Render("● " + name)
}

// ledHex scales the dim board brightness up to full intensity.
func ledHex(c keyboard.Color) string {
	scale := func(v uint8) uint8 {
		if v > 0 {
			return 0xFF
		}
		return 0
	}
	return fmt.Sprintf("#%02X%02X%02X", scale(c.R), scale(c.G), scale(c.B))
}
