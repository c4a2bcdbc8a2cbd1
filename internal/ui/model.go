// Package ui hosts the thin bubbletea Model that drains the ingestion
// engine's event channel and the ABI registry's scan-result channel on
// each tick, applies at most one user input event, and renders the
// State Projection (spec §4.D "Tick pseudo-contract", §5 UI thread).
// Per §1/§11, widget geometry and color beyond severity tagging are
// explicitly out of scope; this package is a thin collaborator, not a
// second copy of the core.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"poke/internal/abiregistry"
	"poke/internal/command"
	"poke/internal/engine"
	"poke/internal/state"
)

// tickInterval is the target UI frame period named in spec §5 ("16 ms,
// ~60 Hz, gracefully extends under load").
const tickInterval = 16 * time.Millisecond

// eventsPerTick bounds how many engine events one tick drains (spec
// §4.D "drains up to N events, N=1024").
const eventsPerTick = 1024

// LabelStore is the persistence collaborator named in spec §11.1.
// internal/labelstore.Store satisfies it; tests use a fake.
type LabelStore interface {
	LoadAll() (map[string]string, error)
	Set(addr, label string) error
	Clear(addr string) error
	Close() error
}

// decodedLogEntry is one ABI-decoded event log, held only in the UI
// layer: the engine deliberately never imports abiregistry (DESIGN.md),
// so decoding LogsReady's raw entries against the live registry
// snapshot happens here, one layer up.
type decodedLogEntry struct {
	entry engine.RawLogEntry
	name  string // event name if topic0 matched, "" otherwise
	args  []abiregistry.DecodedValue
}

// Model is the bubbletea root model. It owns no business logic of its
// own: every mutation is delegated to state.Model or command.Engine.
type Model struct {
	State    *state.Model
	Commands *command.Engine
	Ingest   *engine.Engine
	Registry *abiregistry.Manager
	Labels   LabelStore

	width, height int

	// inputBuf accumulates keystrokes typed in Command/Search/Prompt
	// mode until Enter commits them (spec §4.D input_mode).
	inputBuf string
	promptKind string // set when Mode == InputPrompt: "label" or "storage-slot"
	promptAddr string // address the pending prompt applies to

	focusedPanel panel // which dashboard list j/k/h/l act on

	decodedLogs []decodedLogEntry

	showHelp bool
	quitting bool
}

type panel int

const (
	panelBlocks panel = iota
	panelTxs
)

// New wires a Model from already-constructed collaborators. cmd/poke is
// responsible for constructing and connecting Ingest/Registry/Labels
// before handing them here.
func New(st *state.Model, cmds *command.Engine, ing *engine.Engine, reg *abiregistry.Manager, labels LabelStore) *Model {
	return &Model{
		State:    st,
		Commands: cmds,
		Ingest:   ing,
		Registry: reg,
		Labels:   labels,
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init loads persisted labels and starts the tick loop; cmd/poke
// starts the first ABI scan.
func (m *Model) Init() tea.Cmd {
	if m.Labels != nil {
		if labels, err := m.Labels.LoadAll(); err == nil {
			for addr, label := range labels {
				m.State.Labels[addr] = label
			}
		}
	}
	return tickCmd()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tickMsg:
		m.drainEngineEvents()
		m.drainRegistry()
		if m.quitting {
			return m, tea.Quit
		}
		return m, tickCmd()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	return m.render()
}
