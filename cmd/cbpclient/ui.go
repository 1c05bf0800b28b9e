package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"github.com/stephen-hansen/cbp/pkg/client"
	"github.com/stephen-hansen/cbp/pkg/protocol"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("140"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	chatStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const maxLogLines = 200

// respMsg carries one server response into the UI loop.
type respMsg struct {
	resp protocol.Response
}

// closedMsg reports that the connection dropped.
type closedMsg struct{}

// Model is the UI state: the connection, the scrolling message log, and the
// line being edited.
type Model struct {
	cli        *client.Client
	serverAddr string
	dump       bool

	messages []string
	input    string
	height   int
	closed   bool
}

func initialModel(c *client.Client, serverAddr string, dump bool) Model {
	return Model{
		cli:        c,
		serverAddr: serverAddr,
		dump:       dump,
		messages: []string{
			infoStyle.Render(fmt.Sprintf("Connected to %s.", serverAddr)),
			infoStyle.Render("Log in with: user <name>  then  pass <password>. Type help for commands."),
		},
		height: 24,
	}
}

// listen waits for the next server response.
func listen(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		resp, ok := <-c.Responses
		if !ok {
			return closedMsg{}
		}
		return respMsg{resp: resp}
	}
}

func (m Model) Init() tea.Cmd {
	return listen(m.cli)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case respMsg:
		if m.dump {
			m.addMessage(stateStyle.Render(strings.TrimRight(spew.Sdump(msg.resp), "\n")))
		}
		m.addMessage(renderResponse(msg.resp))
		return m, listen(m.cli)

	case closedMsg:
		m.closed = true
		m.addMessage(errStyle.Render("Connection closed by server. Press any key to exit."))
		return m, nil

	case tea.KeyMsg:
		if m.closed {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cli.Send(protocol.Quit{})
			m.cli.Close()
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input)
			m.input = ""
			if line == "" {
				return m, nil
			}
			return m.execute(line)
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		default:
			if msg.Type == tea.KeyRunes {
				m.input += string(msg.Runes)
			} else if msg.Type == tea.KeySpace {
				m.input += " "
			}
		}
	}
	return m, nil
}

// execute parses one input line into a command PDU and sends it.
func (m Model) execute(line string) (tea.Model, tea.Cmd) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var cmd protocol.Command
	switch strings.ToLower(verb) {
	case "help":
		m.addMessage(helpStyle.Render(helpText))
		return m, nil
	case "user":
		cmd = protocol.User{Name: rest}
	case "pass", "password":
		cmd = protocol.Pass{Password: rest}
	case "getbalance", "balance":
		cmd = protocol.GetBalance{}
	case "updatebalance":
		delta, err := strconv.ParseInt(rest, 10, 32)
		if err != nil {
			m.addMessage(errStyle.Render("usage: updatebalance <delta>"))
			return m, nil
		}
		cmd = protocol.UpdateBalance{Delta: int32(delta)}
	case "gettables", "tables":
		cmd = protocol.GetTables{}
	case "addtable":
		// Settings are space-separated key:value pairs, e.g.
		// addtable max-players:3 bet-limits:10-100
		var b strings.Builder
		for _, field := range strings.Fields(rest) {
			b.WriteString(field)
			b.WriteByte('\n')
		}
		cmd = protocol.AddTable{Settings: b.String()}
	case "removetable":
		id, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			m.addMessage(errStyle.Render("usage: removetable <id>"))
			return m, nil
		}
		cmd = protocol.RemoveTable{TableID: uint16(id)}
	case "jointable", "join":
		id, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			m.addMessage(errStyle.Render("usage: jointable <id>"))
			return m, nil
		}
		cmd = protocol.JoinTable{TableID: uint16(id)}
	case "leavetable", "leave":
		cmd = protocol.LeaveTable{}
	case "bet":
		amount, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			m.addMessage(errStyle.Render("usage: bet <amount>"))
			return m, nil
		}
		cmd = protocol.Bet{Amount: uint32(amount)}
	case "hit":
		cmd = protocol.Hit{}
	case "stand":
		cmd = protocol.Stand{}
	case "doubledown", "double":
		cmd = protocol.DoubleDown{}
	case "chat", "say":
		cmd = protocol.Chat{Message: rest}
	case "quit", "exit":
		m.cli.Send(protocol.Quit{})
		m.cli.Close()
		return m, tea.Quit
	default:
		m.addMessage(errStyle.Render(fmt.Sprintf("unknown command %q, type help", verb)))
		return m, nil
	}

	if err := m.cli.Send(cmd); err != nil {
		m.addMessage(errStyle.Render(fmt.Sprintf("send failed: %v", err)))
	}
	return m, nil
}

// addMessage appends to the log, trimming it to the last maxLogLines entries.
func (m *Model) addMessage(line string) {
	m.messages = append(m.messages, line)
	if len(m.messages) > maxLogLines {
		m.messages = m.messages[len(m.messages)-maxLogLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Casino Blackjack"))
	b.WriteString("\n\n")

	// Show as many recent log lines as fit.
	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	start := len(m.messages) - visible
	if start < 0 {
		start = 0
	}
	for _, line := range m.messages[start:] {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("\n")
	b.WriteString(stateStyle.Render(fmt.Sprintf("[%s] %s", m.cli.State(), m.serverAddr)))
	b.WriteString("\n")
	b.WriteString(promptStyle.Render("> " + m.input + "█"))
	return b.String()
}

const helpText = `commands:
  user <name>, pass <password>
  balance, updatebalance <delta>
  tables, addtable [key:value ...], removetable <id>
  join <id>, leave, bet <amount>, hit, stand, double
  chat <message>, quit`

// renderResponse formats one server PDU as a log line.
func renderResponse(resp protocol.Response) string {
	switch r := resp.(type) {
	case protocol.VersionResponse:
		return infoStyle.Render(fmt.Sprintf("Server protocol version %d.", r.Version))

	case protocol.BalanceResponse:
		return okStyle.Render(fmt.Sprintf("Balance: %d", r.Balance))

	case protocol.ListTablesResponse:
		var b strings.Builder
		b.WriteString(okStyle.Render(fmt.Sprintf("%d table(s):", len(r.Tables))))
		for _, td := range r.Tables {
			b.WriteString(fmt.Sprintf("\n  table %d: %s", td.TableID,
				strings.ReplaceAll(strings.TrimRight(td.Settings, "\n"), "\n", " ")))
		}
		return b.String()

	case protocol.AddTableResponse:
		return okStyle.Render(fmt.Sprintf("Created table %d.", r.TableID))

	case protocol.JoinTableResponse:
		return okStyle.Render("Joined table: " +
			strings.ReplaceAll(strings.TrimRight(r.Settings, "\n"), "\n", " "))

	case protocol.CardHandResponse:
		holder := "Your hand"
		if r.Holder == protocol.HolderDealer {
			holder = "Dealer shows"
		}
		cards := make([]string, len(r.Cards))
		for i, card := range r.Cards {
			cards[i] = card.String()
		}
		line := fmt.Sprintf("%s: %s (soft %d, hard %d)", holder, strings.Join(cards, " "), r.Soft, r.Hard)
		switch r.RC {
		case protocol.RCCardBust:
			return errStyle.Render(line + ", bust!")
		case protocol.RCCardBlackjack:
			return okStyle.Render(line + ", blackjack!")
		case protocol.RCCardTwentyOne:
			return okStyle.Render(line + ", twenty-one!")
		case protocol.RCYourTurn:
			return okStyle.Render(line + ", your turn (hit/stand/double)")
		}
		return infoStyle.Render(line)

	case protocol.WinningsResponse:
		if r.Winnings == 0 {
			return errStyle.Render("Round over, no winnings.")
		}
		return okStyle.Render(fmt.Sprintf("Round over, you won %d.", r.Winnings))

	case protocol.ASCIIResponse:
		body := strings.TrimRight(r.Body, "\n")
		switch {
		case r.RC == protocol.RCChat:
			return chatStyle.Render(body)
		case r.RC.RC1 >= 4:
			return errStyle.Render(body)
		case r.RC.RC1 == 1:
			return infoStyle.Render(body)
		}
		return okStyle.Render(body)
	}
	return stateStyle.Render(fmt.Sprintf("%v", resp))
}
