package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/swap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	versionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	store    *swap.Store
	exec     *swap.Executor
	version  string
	location string
	exports  []string
	input    textinput.Model
	result   string
	selected int
	state    modelState
}

type modelState int

const (
	stateStatus modelState = iota
	stateUploadPath
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(store *swap.Store, exec *swap.Executor) *interactiveModel {
	return &interactiveModel{
		store: store,
		exec:  exec,
		state: stateStatus,
	}
}

type refreshMsg struct {
	err      error
	version  string
	location string
	exports  []string
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.refresh
}

func (m *interactiveModel) refresh() tea.Msg {
	ctx := context.Background()
	location, version := m.store.Info()

	msg := refreshMsg{version: version, location: location}
	if location == "" {
		return msg
	}

	out, err := m.exec.Run(ctx, "", func(ctx context.Context) (any, error) {
		return loader.FromContext(ctx).Exports(ctx)
	})
	if err != nil {
		msg.err = err
		return msg
	}
	msg.exports = out.([]string)
	return msg
}

func (m *interactiveModel) upload() tea.Msg {
	data, err := os.ReadFile(strings.TrimSpace(m.input.Value()))
	if err != nil {
		return refreshMsg{err: err}
	}
	if err := m.store.Replace(data); err != nil {
		return refreshMsg{err: err}
	}
	return m.refresh()
}

func (m *interactiveModel) callExport() tea.Msg {
	ctx := context.Background()
	fn := m.exports[m.selected]

	var params []uint64
	for _, field := range strings.Fields(strings.ReplaceAll(m.input.Value(), ",", " ")) {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return callResultMsg{err: fmt.Errorf("argument %q is not a u64", field)}
		}
		params = append(params, v)
	}

	out, err := m.exec.Run(ctx, "", func(ctx context.Context) (any, error) {
		return loader.FromContext(ctx).Invoke(ctx, fn, params...)
	})
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%v", out)}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateStatus {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateStatus && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateStatus && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "u":
			if m.state == stateStatus {
				m.input = textinput.New()
				m.input.Prompt = "bundle path: "
				m.input.Width = 60
				m.input.Focus()
				m.state = stateUploadPath
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateStatus:
				if len(m.exports) > 0 {
					m.input = textinput.New()
					m.input.Prompt = "args: "
					m.input.Placeholder = "u64 values, comma or space separated"
					m.input.Width = 60
					m.input.Focus()
					m.state = stateInputArgs
					return m, nil
				}

			case stateUploadPath:
				m.state = stateStatus
				return m, m.upload

			case stateInputArgs:
				return m, m.callExport

			case stateShowResult:
				m.state = stateStatus
				m.result = ""
				m.err = nil
				return m, m.refresh
			}

		case "esc":
			switch m.state {
			case stateUploadPath, stateInputArgs:
				m.state = stateStatus
			case stateShowResult:
				m.state = stateStatus
				m.result = ""
				m.err = nil
			}
		}

	case refreshMsg:
		m.err = msg.err
		m.version = msg.version
		m.location = msg.location
		m.exports = msg.exports
		if m.selected >= len(m.exports) {
			m.selected = 0
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateUploadPath || m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hotswap"))
	b.WriteString(" ")
	if m.version != "" {
		b.WriteString(versionStyle.Render("v" + m.version))
	} else {
		b.WriteString(helpStyle.Render("(no version)"))
	}
	b.WriteString("\n")
	if m.location != "" {
		b.WriteString(locationStyle.Render(m.location))
	} else {
		b.WriteString(helpStyle.Render("no active bundle"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateStatus:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		if len(m.exports) > 0 {
			b.WriteString("Exports:\n")
			for i, name := range m.exports {
				if i == m.selected {
					b.WriteString(selectedStyle.Render("> " + name))
				} else {
					b.WriteString("  " + name)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • u upload bundle • q quit"))

	case stateUploadPath:
		b.WriteString("Upload and activate a bundle:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter upload • esc back"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", versionStyle.Render(m.exports[m.selected])))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		b.WriteString("Result:\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue"))
	}

	return b.String()
}

func runInteractive(store *swap.Store, exec *swap.Executor) error {
	p := tea.NewProgram(newInteractiveModel(store, exec), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
