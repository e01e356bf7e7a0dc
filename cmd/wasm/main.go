//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/backup"
	"github.com/studykit/studygo/pkg/chatrepo"
	"github.com/studykit/studygo/pkg/ingest"
	"github.com/studykit/studygo/pkg/migration"
	"github.com/studykit/studygo/pkg/notebook"
	"github.com/studykit/studygo/pkg/profile"
	"github.com/studykit/studygo/pkg/stores"
	"github.com/studykit/studygo/pkg/tutor"
)

// Version info
const Version = "1.0.0"

// Global state, wired once by studyInit.
var sqlStore *store.SQLiteStore
var chatSvc *chatrepo.Service
var notebookSvc *notebook.Service
var profileSvc *profile.Service
var tutorSvc *tutor.Service
var ingestSvc *ingest.Service
var backupSvc *backup.Service
var sessionStore *stores.SessionStore
var messageStore *stores.MessageStore
var notebookStore *stores.NotebookStore

func main() {
	fmt.Println("[StudyKit] WASM Ready v" + Version)

	js.Global().Set("StudyKit", js.ValueOf(map[string]interface{}{
		"version": js.FuncOf(getVersion),
		"init":    js.FuncOf(studyInit),
		"setUser": js.FuncOf(setUser),
		"migrate": js.FuncOf(runMigration),
		// Chat
		"createSession": js.FuncOf(createSession),
		"listSessions":  js.FuncOf(listSessions),
		"deleteSession": js.FuncOf(deleteSession),
		"openSession":   js.FuncOf(openSession),
		"getMessages":   js.FuncOf(getMessages),
		"ask":           js.FuncOf(ask),
		// Notebook
		"createEntry":    js.FuncOf(createEntry),
		"updateEntry":    js.FuncOf(updateEntry),
		"getEntry":       js.FuncOf(getEntry),
		"listEntries":    js.FuncOf(listEntries),
		"searchEntries":  js.FuncOf(searchEntries),
		"relatedEntries": js.FuncOf(relatedEntries),
		"deleteEntry":    js.FuncOf(deleteEntry),
		"notebookStats":  js.FuncOf(notebookStats),
		// Learning profile
		"recordAssessment": js.FuncOf(recordAssessment),
		"weakConcepts":     js.FuncOf(weakConcepts),
		"scanConcepts":     js.FuncOf(scanConcepts),
		// Documents + backup
		"ingestDocument": js.FuncOf(ingestDocument),
		"buildBackup":    js.FuncOf(buildBackup),
		"restoreBackup":  js.FuncOf(restoreBackup),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// studyInit opens the store and wires every service.
// Args: [configJSON string] - {tutorEndpoint, tutorApiKey, tutorModel, ingestEndpoint, ingestApiKey}
func studyInit(this js.Value, args []js.Value) interface{} {
	var config struct {
		TutorEndpoint  string `json:"tutorEndpoint"`
		TutorAPIKey    string `json:"tutorApiKey"`
		TutorModel     string `json:"tutorModel"`
		IngestEndpoint string `json:"ingestEndpoint"`
		IngestAPIKey   string `json:"ingestApiKey"`
	}
	if len(args) > 0 && args[0].String() != "" {
		if err := json.Unmarshal([]byte(args[0].String()), &config); err != nil {
			return errorResult("invalid config json: " + err.Error())
		}
	}

	var err error
	sqlStore, err = store.NewSQLiteStore()
	if err != nil {
		return errorResult("failed to initialize store: " + err.Error())
	}

	chatSvc = chatrepo.NewService(sqlStore)
	notebookSvc = notebook.NewService(sqlStore)
	profileSvc = profile.NewService(sqlStore)
	tutorSvc = tutor.NewService(tutor.Config{
		Endpoint: config.TutorEndpoint,
		APIKey:   config.TutorAPIKey,
		Model:    config.TutorModel,
	}, chatSvc)
	ingestSvc = ingest.NewService(ingest.Config{
		Endpoint: config.IngestEndpoint,
		APIKey:   config.IngestAPIKey,
	}, notebookSvc)
	backupSvc = backup.NewService(chatSvc, notebookSvc)
	sessionStore = stores.NewSessionStore(chatSvc)
	messageStore = stores.NewMessageStore(chatSvc)
	notebookStore = stores.NewNotebookStore(notebookSvc)

	fmt.Println("[StudyKit] Store and services initialized")
	return successResult("initialized")
}

// setUser rescopes every view-model store to the signed-in user.
// Args: [userID string] - empty string on sign-out
func setUser(this js.Value, args []js.Value) interface{} {
	if sessionStore == nil {
		return errorResult("not initialized")
	}
	userID := ""
	if len(args) > 0 {
		userID = args[0].String()
	}

	if err := sessionStore.SetUser(userID); err != nil {
		return errorResult(err.Error())
	}
	messageStore.SetUser(userID)
	if err := notebookStore.SetUser(userID); err != nil {
		return errorResult(err.Error())
	}
	return successResult("user set")
}

// localStorageLegacy adapts window.localStorage to the migration
// controller's LegacyStore.
type localStorageLegacy struct {
	ls js.Value
}

func (l localStorageLegacy) Get(key string) (string, bool) {
	v := l.ls.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false
	}
	return v.String(), true
}

func (l localStorageLegacy) Remove(key string) {
	l.ls.Call("removeItem", key)
}

// runMigration executes the boot-time legacy migration for a user. On
// completion the view-model stores are rescoped to that user, so the
// caller does not need a separate setUser call on the boot path.
// Args: [userID string]
func runMigration(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("migrate requires 1 arg: userID")
	}
	if sqlStore == nil {
		return errorResult("not initialized")
	}
	userID := args[0].String()

	legacy := localStorageLegacy{ls: js.Global().Get("localStorage")}
	controller := migration.NewController(legacy, func() (store.Storer, error) {
		return sqlStore, nil
	})

	summary, err := controller.Run(userID)
	if err != nil && summary == nil {
		return errorResult(err.Error())
	}

	if summary.State == migration.StateCompleted {
		if err := sessionStore.SetUser(userID); err != nil {
			fmt.Printf("[Migration] Failed to scope session store: %v\n", err)
		}
		messageStore.SetUser(userID)
		if err := notebookStore.SetUser(userID); err != nil {
			fmt.Printf("[Migration] Failed to scope notebook store: %v\n", err)
		}
	}
	return jsonResult(summary)
}

// =============================================================================
// Chat bridge
// =============================================================================

// createSession: [title string, type string, subjectID string]
func createSession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("createSession requires: title, [type], [subjectID]")
	}
	if sessionStore == nil {
		return errorResult("not initialized")
	}

	typ := store.SessionGeneral
	if len(args) > 1 && args[1].String() != "" {
		typ = store.SessionType(args[1].String())
	}
	subjectID := ""
	if len(args) > 2 {
		subjectID = args[2].String()
	}

	sess, err := sessionStore.Create(args[0].String(), typ, subjectID)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(sess)
}

func listSessions(this js.Value, args []js.Value) interface{} {
	if sessionStore == nil {
		return errorResult("not initialized")
	}
	return jsonResult(sessionStore.Sessions())
}

// deleteSession: [sessionID string]
func deleteSession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteSession requires 1 arg: sessionID")
	}
	if err := sessionStore.Delete(args[0].String()); err != nil {
		return errorResult(err.Error())
	}
	return successResult("deleted")
}

// openSession: [sessionID string, limit int]
func openSession(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("openSession requires: sessionID, [limit]")
	}
	limit := 0
	if len(args) > 1 {
		limit = args[1].Int()
	}
	if err := messageStore.Open(args[0].String(), limit); err != nil {
		return errorResult(err.Error())
	}
	sessionStore.SetActive(args[0].String())
	return jsonResult(messageStore.Messages())
}

func getMessages(this js.Value, args []js.Value) interface{} {
	if messageStore == nil {
		return errorResult("not initialized")
	}
	return jsonResult(messageStore.Messages())
}

// ask sends the student's message through the tutor boundary. Returns a
// Promise; the fetch round trip must not block the JS event loop.
// Args: [sessionID string, userID string, content string]
func ask(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("ask requires 3 args: sessionID, userID, content")
	}
	sessionID := args[0].String()
	userID := args[1].String()
	content := args[2].String()

	promise, resolve, reject := makePromise()

	go func() {
		if tutorSvc == nil {
			reject.Invoke(js.Global().Get("Error").New("ask: not initialized"))
			return
		}
		completion, err := tutorSvc.Ask(context.Background(), sessionID, userID, content, nil)
		if err != nil {
			reject.Invoke(js.Global().Get("Error").New(fmt.Sprintf("ask: %v", err)))
			return
		}
		jsonBytes, _ := json.Marshal(map[string]interface{}{
			"content":  completion.Content,
			"fallback": completion.Fallback,
			"thinking": completion.Meta.Thinking,
		})
		resolve.Invoke(string(jsonBytes))
	}()

	return promise
}

// =============================================================================
// Notebook bridge
// =============================================================================

// createEntry: [entryJSON string]
func createEntry(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("createEntry requires 1 arg: entryJSON")
	}
	if notebookStore == nil {
		return errorResult("not initialized")
	}

	var e notebook.Entry
	if err := json.Unmarshal([]byte(args[0].String()), &e); err != nil {
		return errorResult("invalid entry json: " + err.Error())
	}
	id, err := notebookStore.Create(&e)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]string{"id": id})
}

// updateEntry: [entryID string, updateJSON string]
func updateEntry(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("updateEntry requires 2 args: entryID, updateJSON")
	}

	var upd notebook.EntryUpdate
	if err := json.Unmarshal([]byte(args[1].String()), &upd); err != nil {
		return errorResult("invalid update json: " + err.Error())
	}
	if err := notebookStore.Update(args[0].String(), upd); err != nil {
		return errorResult(err.Error())
	}
	return successResult("updated")
}

// getEntry reads one entry and records the access.
// Args: [entryID string]
func getEntry(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("getEntry requires 1 arg: entryID")
	}
	e, err := notebookSvc.GetEntryTouch(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	if e == nil {
		return jsonResult(nil)
	}
	return jsonResult(e)
}

func listEntries(this js.Value, args []js.Value) interface{} {
	if notebookStore == nil {
		return errorResult("not initialized")
	}
	return jsonResult(notebookStore.Entries())
}

// searchEntries: [query string, limit int]
func searchEntries(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("searchEntries requires: query, [limit]")
	}
	limit := 50
	if len(args) > 1 {
		limit = args[1].Int()
	}
	hits, err := notebookStore.Search(args[0].String(), limit)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(hits)
}

// relatedEntries: [entryID string, userID string, limit int]
func relatedEntries(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("relatedEntries requires: entryID, userID, [limit]")
	}
	limit := 10
	if len(args) > 2 {
		limit = args[2].Int()
	}
	related, err := notebookSvc.GetRelatedEntries(args[0].String(), args[1].String(), limit)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(related)
}

// deleteEntry: [entryID string]
func deleteEntry(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("deleteEntry requires 1 arg: entryID")
	}
	if err := notebookStore.Delete(args[0].String()); err != nil {
		return errorResult(err.Error())
	}
	return successResult("deleted")
}

// notebookStats: [userID string, subjectID string]
func notebookStats(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("notebookStats requires: userID, [subjectID]")
	}
	subjectID := ""
	if len(args) > 1 {
		subjectID = args[1].String()
	}
	stats, err := notebookSvc.GetStats(args[0].String(), subjectID)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(stats)
}

// =============================================================================
// Learning profile bridge
// =============================================================================

// recordAssessment: [userID, subjectID, concept string, confidence float, entryID string]
func recordAssessment(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult("recordAssessment requires: userID, subjectID, concept, confidence, [entryID]")
	}
	entryID := ""
	if len(args) > 4 {
		entryID = args[4].String()
	}
	row, err := profileSvc.RecordAssessment(
		args[0].String(), args[1].String(), args[2].String(), args[3].Float(), entryID)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(row)
}

// weakConcepts: [userID string, threshold float]
func weakConcepts(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("weakConcepts requires 2 args: userID, threshold")
	}
	rows, err := profileSvc.WeakConcepts(args[0].String(), args[1].Float())
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(rows)
}

// scanConcepts: [userID, subjectID, text string]
func scanConcepts(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("scanConcepts requires 3 args: userID, subjectID, text")
	}
	mentions, err := profileSvc.ScanText(args[0].String(), args[1].String(), args[2].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(mentions)
}

// =============================================================================
// Documents + backup bridge
// =============================================================================

// ingestDocument processes an uploaded file and saves the result as a
// notebook entry. Returns a Promise resolving to {"id": ...}.
// Args: [requestJSON string, userID string] - request carries base64 data
func ingestDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("ingestDocument requires 2 args: requestJSON, userID")
	}
	requestJSON := args[0].String()
	userID := args[1].String()

	promise, resolve, reject := makePromise()

	go func() {
		var req ingest.Request
		if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
			reject.Invoke(js.Global().Get("Error").New("ingestDocument: invalid request: " + err.Error()))
			return
		}
		id, err := ingestSvc.ProcessAndSave(context.Background(), req, userID)
		if err != nil {
			reject.Invoke(js.Global().Get("Error").New(fmt.Sprintf("ingestDocument: %v", err)))
			return
		}
		jsonBytes, _ := json.Marshal(map[string]string{"id": id})
		resolve.Invoke(string(jsonBytes))
	}()

	return promise
}

// buildBackup: [userID string] -> {"filename": ..., "payload": ...}
func buildBackup(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("buildBackup requires 1 arg: userID")
	}
	payload, filename, err := backupSvc.Build(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]string{
		"filename": filename,
		"payload":  string(payload),
	})
}

// restoreBackup: [payloadJSON string, userID string]
func restoreBackup(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("restoreBackup requires 2 args: payloadJSON, userID")
	}
	if err := backupSvc.Restore([]byte(args[0].String()), args[1].String()); err != nil {
		return errorResult(err.Error())
	}
	return successResult("restored")
}

// =============================================================================
// Helpers
// =============================================================================

func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}

func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

func jsonResult(v interface{}) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult("marshal: " + err.Error())
	}
	return string(jsonBytes)
}
