package simulator

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

// KeyMap defines the simulator's own bindings. Every other key is typed
// into the appliance keyboard.
type KeyMap struct {
	Quit  key.Binding
	Help  key.Binding
	Break key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("ctrl+q", "power off"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		Break: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("ctrl+b", "fn+break"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Break, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Break, k.Quit}}
}

var specialKeys = map[tea.KeyType]byte{
	tea.KeyEnter:     keyboard.CodeEnter,
	tea.KeyBackspace: keyboard.CodeBackspace,
	tea.KeyTab:       keyboard.CodeTab,
	tea.KeyEsc:       keyboard.CodeEscape,
	tea.KeySpace:     ' ',
	tea.KeyUp:        keyboard.FnUp,
	tea.KeyDown:      keyboard.FnDown,
	tea.KeyLeft:      keyboard.FnLeft,
	tea.KeyRight:     keyboard.FnRight,
	tea.KeyHome:      keyboard.FnHome,
	tea.KeyEnd:       keyboard.FnEnd,
	tea.KeyPgUp:      keyboard.FnPageUp,
	tea.KeyPgDown:    keyboard.FnPageDn,
	tea.KeyInsert:    keyboard.FnInsert,
	tea.KeyDelete:    keyboard.FnDelete,
}

// keyCodes returns the appliance codes a host key press stands for.
func keyCodes(msg tea.KeyMsg) []byte {
	if msg.Type == tea.KeyRunes {
		var codes []byte
		for _, r := range msg.Runes {
			if r < 0x80 && keyboard.IsPrintable(byte(r)) {
				codes = append(codes, byte(r))
			}
		}
		return codes
	}
	if c, ok := specialKeys[msg.Type]; ok {
		return []byte{c}
	}
	return nil
}
