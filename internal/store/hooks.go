package store

import "strings"

// Write-path derivation hooks.
//
// Every derived field (searchText, numeric timestamp mirrors) is recomputed
// here, inside the store's write path, so no call site can persist a row with
// stale derived data. Hooks run exactly once per write, before the row is
// handed to SQLite, so a read in the same logical operation always observes
// consistent values.

// hookCreateMessage stamps a brand-new message.
// Caller-supplied values for the derived fields are overridden.
func hookCreateMessage(m *ChatMessage, now int64) {
	m.SearchText = strings.ToLower(m.Content)
	m.Timestamp = now
	m.CreatedAt = now
	m.UpdatedAt = now
}

// hookUpdateMessage stamps an overwrite of an existing message.
// SearchText follows Content; Timestamp and CreatedAt are preserved from the
// stored row; UpdatedAt is always bumped regardless of which fields changed.
func hookUpdateMessage(m *ChatMessage, prev *ChatMessage, now int64) {
	m.SearchText = strings.ToLower(m.Content)
	m.Timestamp = prev.Timestamp
	m.CreatedAt = prev.CreatedAt
	m.UpdatedAt = now
}

// hookImportMessage stamps a message restored from a legacy blob.
// SearchText is derived as usual, but original timestamps survive the
// import; only missing ones are filled with now.
func hookImportMessage(m *ChatMessage, now int64) {
	m.SearchText = strings.ToLower(m.Content)
	if m.Timestamp == 0 {
		m.Timestamp = now
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = m.Timestamp
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.Timestamp
	}
}

// hookCreateEntry stamps a brand-new notebook entry.
func hookCreateEntry(e *NotebookEntry, now int64) {
	e.SearchText = entrySearchText(e.Title, e.Content)
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Version == 0 {
		e.Version = 1
	}
}

// hookUpdateEntry stamps an overwrite of an existing notebook entry.
func hookUpdateEntry(e *NotebookEntry, prev *NotebookEntry, now int64) {
	e.SearchText = entrySearchText(e.Title, e.Content)
	e.CreatedAt = prev.CreatedAt
	e.UpdatedAt = now
}

// hookImportEntry stamps an entry restored from a legacy blob,
// preserving its original timestamps where present.
func hookImportEntry(e *NotebookEntry, now int64) {
	e.SearchText = entrySearchText(e.Title, e.Content)
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}
	if e.Version == 0 {
		e.Version = 1
	}
}

// entrySearchText is the single definition of the notebook search key:
// lower-cased title and content joined by one space.
func entrySearchText(title, content string) string {
	return strings.ToLower(title + " " + content)
}
