//go:build js && wasm
// +build js,wasm

package tutor

import (
	"context"
	"fmt"
	"syscall/js"
)

// callCompletion posts the request to the completion endpoint using the
// browser's fetch.
func (s *Service) callCompletion(_ context.Context, body string) (string, error) {
	if s.config.Endpoint == "" {
		return "", fmt.Errorf("tutor: completion endpoint not configured")
	}

	fetch := js.Global().Get("fetch")
	if fetch.IsUndefined() {
		return "", fmt.Errorf("tutor: fetch not available")
	}

	headers := js.Global().Get("Object").New()
	headers.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", s.config.APIKey))
	}

	options := js.Global().Get("Object").New()
	options.Set("method", "POST")
	options.Set("headers", headers)
	options.Set("body", body)

	promise := fetch.Invoke(s.config.Endpoint, options)

	resultCh := make(chan struct {
		response string
		err      error
	})

	then := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		response := args[0]

		status := response.Get("status").Int()
		if !response.Get("ok").Bool() {
			textPromise := response.Call("text")
			textThen := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
				errText := args[0].String()
				resultCh <- struct {
					response string
					err      error
				}{response: "", err: fmt.Errorf("HTTP %d: %s", status, errText)}
				return nil
			})
			defer textThen.Release()
			textPromise.Call("then", textThen)
			return nil
		}

		textPromise := response.Call("text")
		textThen := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			text := args[0].String()
			resultCh <- struct {
				response string
				err      error
			}{response: text, err: nil}
			return nil
		})
		defer textThen.Release()

		textPromise.Call("then", textThen)
		return nil
	})
	defer then.Release()

	catch := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		errMsg := args[0].Get("message").String()
		resultCh <- struct {
			response string
			err      error
		}{response: "", err: fmt.Errorf("%s", errMsg)}
		return nil
	})
	defer catch.Release()

	promise.Call("then", then).Call("catch", catch)

	result := <-resultCh
	return result.response, result.err
}
