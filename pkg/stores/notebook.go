package stores

import (
	"fmt"
	"sync"

	"github.com/studykit/studygo/pkg/notebook"
)

// NotebookStore caches the active user's notebook entries, updatedAt
// descending.
type NotebookStore struct {
	mu      sync.RWMutex
	repo    *notebook.Service
	userID  string
	entries []*notebook.Entry
}

// NewNotebookStore creates an empty notebook store.
func NewNotebookStore(repo *notebook.Service) *NotebookStore {
	return &NotebookStore{repo: repo}
}

// SetUser rescopes the store to a user and hydrates the cache. An empty
// userID clears everything.
func (n *NotebookStore) SetUser(userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.userID = userID
	n.entries = nil
	if userID == "" {
		return nil
	}

	entries, err := n.repo.GetEntries(userID, notebook.Filter{})
	if err != nil {
		return fmt.Errorf("hydrate notebook: %w", err)
	}
	n.entries = entries
	return nil
}

// Refresh re-reads the cache from the repository.
func (n *NotebookStore) Refresh() error {
	n.mu.RLock()
	userID := n.userID
	n.mu.RUnlock()
	return n.SetUser(userID)
}

// Entries returns a snapshot of the cached entries.
func (n *NotebookStore) Entries() []*notebook.Entry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*notebook.Entry, len(n.entries))
	copy(out, n.entries)
	return out
}

// Create persists a new entry and places it at the front of the cache
// (it is, by construction, the most recently updated).
func (n *NotebookStore) Create(e *notebook.Entry) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.userID == "" {
		return "", fmt.Errorf("create entry: no active user")
	}

	id, err := n.repo.CreateEntry(e, n.userID)
	if err != nil {
		return "", err
	}
	n.entries = append([]*notebook.Entry{e}, n.entries...)
	return id, nil
}

// Update persists a partial update, then replaces the cached copy with
// the stored result so derived fields stay honest.
func (n *NotebookStore) Update(id string, upd notebook.EntryUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.repo.UpdateEntry(id, upd); err != nil {
		return err
	}
	fresh, err := n.repo.GetEntry(id)
	if err != nil {
		return err
	}
	for i, e := range n.entries {
		if e.ID == id {
			n.entries[i] = fresh
			break
		}
	}
	return nil
}

// Delete removes an entry and drops it from the cache.
func (n *NotebookStore) Delete(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.repo.DeleteEntry(id); err != nil {
		return err
	}
	for i, e := range n.entries {
		if e.ID == id {
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			break
		}
	}
	return nil
}

// Search passes straight through to the repository; search results are
// not cached.
func (n *NotebookStore) Search(query string, limit int) ([]*notebook.Entry, error) {
	n.mu.RLock()
	userID := n.userID
	n.mu.RUnlock()

	if userID == "" {
		return nil, fmt.Errorf("search entries: no active user")
	}
	return n.repo.SearchEntries(userID, query, limit)
}
