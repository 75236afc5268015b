package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/lua-runtime/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// runRepl starts the full screen REPL on a terminal and a line oriented one
// otherwise.
func runRepl(s *session, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		m := newReplModel(s)
		if err := s.redirectPrint(&m.printed); err != nil {
			return err
		}
		_, err := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out)).Run()
		return err
	}
	if err := s.redirectPrint(out); err != nil {
		return err
	}
	return lineRepl(s, in, out)
}

func lineRepl(s *session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		vals, err := s.eval(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if len(vals) > 0 {
			fmt.Fprintln(out, formatValues(vals))
		}
		vm.CloseValues(vals)
	}
	return sc.Err()
}

// redirectPrint replaces the print global with one writing to w.
func (s *session) redirectPrint(w io.Writer) error {
	fn, err := s.lua.CreateFunction(func(_ *vm.CallContext, args []vm.Value) ([]vm.Value, error) {
		parts := make([]string, len(args))
		for i, v := range args {
			if str, ok := v.(*vm.String); ok {
				parts[i] = str.String()
				continue
			}
			parts[i] = formatValue(v)
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, "\t"))
		return nil, err
	})
	if err != nil {
		return err
	}
	defer fn.Close()
	return s.lua.SetGlobal("print", fn)
}

type entry struct {
	input  string
	output string
	err    bool
}

type replModel struct {
	s       *session
	input   textinput.Model
	entries []entry
	history []string
	cursor  int
	busy    bool
	printed strings.Builder
}

type evalMsg struct {
	input  string
	result string
	err    error
}

func newReplModel(s *session) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("> ")
	ti.Placeholder = "expression or statement"
	ti.Focus()
	return &replModel{s: s, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) evaluate(line string) tea.Cmd {
	return func() tea.Msg {
		m.printed.Reset()
		vals, err := m.s.eval(line)
		defer vm.CloseValues(vals)
		out := strings.TrimRight(m.printed.String(), "\n")
		if err == nil && len(vals) > 0 {
			if out != "" {
				out += "\n"
			}
			out += formatValues(vals)
		}
		return evalMsg{input: line, result: out, err: err}
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "esc":
			m.input.SetValue("")
			return m, nil
		case "up":
			if m.cursor > 0 {
				m.cursor--
				m.input.SetValue(m.history[m.cursor])
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if m.cursor < len(m.history) {
				m.cursor++
				if m.cursor == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.cursor])
				}
				m.input.CursorEnd()
			}
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.history = append(m.history, line)
			m.cursor = len(m.history)
			m.input.SetValue("")
			return m, m.evaluate(line)
		}

	case evalMsg:
		m.busy = false
		e := entry{input: msg.input, output: msg.result}
		if msg.err != nil {
			e.output, e.err = msg.err.Error(), true
		}
		m.entries = append(m.entries, e)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("luau"))
	b.WriteString("\n\n")
	for _, e := range m.entries {
		b.WriteString(promptStyle.Render("> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		switch {
		case e.err:
			b.WriteString(errorStyle.Render(e.output))
			b.WriteString("\n")
		case e.output != "":
			b.WriteString(resultStyle.Render(e.output))
			b.WriteString("\n")
		}
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter: evaluate • up/down: history • esc: clear • ctrl+c: quit"))
	return b.String()
}
