// Package migration moves legacy key-value blobs into the structured
// store, once, at boot. The controller is a one-shot state machine:
// uninitialized -> migrating -> completed | failed. A blob is deleted
// only after its namespace imported successfully, so a crashed or failed
// run can always be retried from the surviving blob.
package migration

import (
	"fmt"
	"strings"
	"sync"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/chatrepo"
	"github.com/studykit/studygo/pkg/notebook"
)

// Legacy namespaces, the localStorage keys the old app persisted under.
const (
	NamespaceChat     = "chat-storage"
	NamespaceNotebook = "notebook-storage"
	NamespaceContext  = "study-context"
)

// State is the controller's lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateMigrating     State = "migrating"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// LegacyStore is the key-value source being migrated away from.
type LegacyStore interface {
	Get(key string) (string, bool)
	Remove(key string)
}

// MapLegacyStore is an in-memory LegacyStore.
type MapLegacyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMapLegacyStore(data map[string]string) *MapLegacyStore {
	if data == nil {
		data = make(map[string]string)
	}
	return &MapLegacyStore{data: data}
}

func (m *MapLegacyStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MapLegacyStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MapLegacyStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Summary reports what one migration run did.
type Summary struct {
	State           State    `json:"state"`
	ChatSessions    int      `json:"chatSessions"`
	ChatMessages    int      `json:"chatMessages"`
	NotebookEntries int      `json:"notebookEntries"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Controller drives the boot-time migration. Construct one per app
// start; Run is idempotent across instances because each namespace blob
// is deleted the moment its import lands.
type Controller struct {
	legacy    LegacyStore
	openStore func() (store.Storer, error)

	mu      sync.Mutex
	state   State
	summary *Summary
	runErr  error
}

// NewController wires a controller to a legacy source and a store
// opener. The opener is injected so tests can hand in isolated stores
// or simulate an unopenable one.
func NewController(legacy LegacyStore, openStore func() (store.Storer, error)) *Controller {
	return &Controller{
		legacy:    legacy,
		openStore: openStore,
		state:     StateUninitialized,
	}
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run performs the migration for userID. Calling it again on the same
// controller returns the first run's summary without re-touching the
// store. A store that fails to open is fatal. A malformed namespace
// blob does not stop the other namespace from importing, but it does
// end the run in a failed state with the failures aggregated; the bad
// blob is kept so a reload can retry, and any namespace that did land
// stays intact.
func (c *Controller) Run(userID string) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return c.summary, c.runErr
	}
	c.state = StateMigrating

	st, err := c.openStore()
	if err != nil {
		c.state = StateFailed
		c.summary = &Summary{State: StateFailed}
		c.runErr = fmt.Errorf("migration: store unavailable: %w", err)
		return c.summary, c.runErr
	}

	summary := &Summary{}
	sawLegacy := false

	if blob, ok := c.legacy.Get(NamespaceChat); ok {
		sawLegacy = true
		if _, _, err := chatrepo.NewService(st).ImportFromLocalStorage([]byte(blob), userID); err != nil {
			fmt.Printf("[Migration] %s import failed, keeping blob: %v\n", NamespaceChat, err)
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("%s: %v", NamespaceChat, err))
		} else {
			c.legacy.Remove(NamespaceChat)
		}
	}

	if blob, ok := c.legacy.Get(NamespaceNotebook); ok {
		sawLegacy = true
		if _, err := notebook.NewService(st).ImportFromLocalStorage([]byte(blob), userID); err != nil {
			fmt.Printf("[Migration] %s import failed, keeping blob: %v\n", NamespaceNotebook, err)
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("%s: %v", NamespaceNotebook, err))
		} else {
			c.legacy.Remove(NamespaceNotebook)
		}
	}

	// The study-context namespace holds a UI snapshot that the session
	// metadata already carries post-migration. It is recognized but not
	// imported, and the blob stays put so nothing is lost.
	if _, ok := c.legacy.Get(NamespaceContext); ok {
		fmt.Printf("[Migration] %s present, skipped (not imported)\n", NamespaceContext)
	}

	// Summary counts come from the store, not from the importers' return
	// values: the rows now attributable to the user are what actually
	// landed and what the UI reports.
	if sawLegacy {
		if n, err := st.CountSessions(userID); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("count sessions: %v", err))
		} else {
			summary.ChatSessions = n
		}
		if n, err := st.CountMessages(userID); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("count messages: %v", err))
		} else {
			summary.ChatMessages = n
		}
		if n, err := st.CountEntries(userID); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("count entries: %v", err))
		} else {
			summary.NotebookEntries = n
		}
	}

	if len(summary.Warnings) > 0 {
		c.state = StateFailed
		summary.State = StateFailed
		c.summary = summary
		c.runErr = fmt.Errorf("migration: %s", strings.Join(summary.Warnings, "; "))
		return summary, c.runErr
	}

	c.state = StateCompleted
	summary.State = StateCompleted
	c.summary = summary
	return summary, nil
}
