// Package paneltest simulates a panel's menu system behind a scripted port.
package paneltest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const clearScreen = "\x1b[2J\x1b[H"

type panelState uint8

const (
	stateIdle panelState = iota
	stateLogin
	stateMainMenu
	stateGroupMenu
	stateGroupPrompt
	stateSummary
	stateCommandType
	stateCommandValue
)

// Row is one point on a simulated group summary.
type Row struct {
	Name  string
	Value string
}

// FakePanel reacts to keystrokes the way the panel's menus do. Use
// Respond as a porttest.Responder.
type FakePanel struct {
	mu sync.Mutex

	Credential       string
	IgnoreInterrupts int
	Groups           map[int]map[int]*Row

	state    panelState
	loggedIn bool
	line     strings.Builder
	group    int
	point    int
	cmdType  string
	commands []string
}

// NewFakePanel creates a panel with one populated group. An empty
// credential disables the login prompt.
func NewFakePanel(credential string) *FakePanel {
	return &FakePanel{
		Credential: credential,
		Groups: map[int]map[int]*Row{
			2: {
				1: {Name: "Temp Supply", Value: "72.4"},
				2: {Name: "Fan Status", Value: "ON"},
				3: {Name: "Mode", Value: "AUTO"},
			},
		},
	}
}

// Commands lists accepted commands as "group/point type=value".
func (p *FakePanel) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *FakePanel) Value(group, point int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if row, ok := p.Groups[group][point]; ok {
		return row.Value
	}
	return ""
}

func (p *FakePanel) Respond(written []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out strings.Builder
	for _, c := range written {
		out.WriteString(p.key(c))
	}
	return []byte(out.String())
}

func (p *FakePanel) key(c byte) string {
	if c == 0x1b {
		p.line.Reset()
		if p.IgnoreInterrupts > 0 {
			p.IgnoreInterrupts--
			return clearScreen + "SYSTEM BUSY\r\n"
		}
		if p.Credential != "" && !p.loggedIn {
			p.state = stateLogin
			return clearScreen + "ENTER PASSWORD:"
		}
		p.state = stateMainMenu
		return p.mainMenu()
	}

	switch p.state {
	case stateMainMenu:
		if c == 'G' {
			p.state = stateGroupMenu
			return clearScreen + "GROUPS\r\n S - Summary\r\n"
		}
		return ""
	case stateGroupMenu:
		if c == 'S' {
			p.state = stateGroupPrompt
			return clearScreen + "For Group Number: "
		}
		return ""
	case stateIdle:
		return ""
	}

	if c != '\r' {
		p.line.WriteByte(c)
		return ""
	}
	entry := p.line.String()
	p.line.Reset()

	switch p.state {
	case stateLogin:
		if entry == p.Credential {
			p.loggedIn = true
			p.state = stateMainMenu
			return p.mainMenu()
		}
		return clearScreen + "INVALID\r\nENTER PASSWORD:"
	case stateGroupPrompt:
		group, err := strconv.Atoi(entry)
		if err != nil {
			return "\r\nINVALID GROUP"
		}
		p.group = group
		p.state = stateSummary
		return p.summary("")
	case stateSummary:
		point, err := strconv.Atoi(entry)
		if err != nil {
			return "\r\nINVALID POINT"
		}
		p.point = point
		p.state = stateCommandType
		return fmt.Sprintf("\r\nPoint %d selected. Command type: ", point)
	case stateCommandType:
		p.cmdType = entry
		p.state = stateCommandValue
		return "\r\nValue: "
	case stateCommandValue:
		if row, ok := p.Groups[p.group][p.point]; ok {
			row.Value = entry
		}
		p.commands = append(p.commands, fmt.Sprintf("%d/%d %s=%s", p.group, p.point, p.cmdType, entry))
		p.state = stateSummary
		return p.summary("COMMAND ACCEPTED")
	}
	return ""
}

func (p *FakePanel) mainMenu() string {
	return clearScreen + "MAIN MENU\r\n G - Groups\r\n"
}

func (p *FakePanel) summary(banner string) string {
	var sb strings.Builder
	sb.WriteString(clearScreen)
	fmt.Fprintf(&sb, "For Group Number: %d\r\n", p.group)
	sb.WriteString(" Point  Name             Value\r\n")

	rows := p.Groups[p.group]
	numbers := make([]int, 0, len(rows))
	for n := range rows {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		fmt.Fprintf(&sb, "%4d    %-15s  %s\r\n", n, rows[n].Name, rows[n].Value)
	}
	if banner != "" {
		sb.WriteString(banner + "\r\n")
	}
	return sb.String()
}
