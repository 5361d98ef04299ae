//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/speakeasy-api/valueflow/pkg/playground"
)

// AnalyzeFixture runs a fixture and returns the playground result as JSON.
func AnalyzeFixture(fixtureYAML, configYAML string) (string, error) {
	result, err := playground.AnalyzeFixture(fixtureYAML, configYAML)
	if err != nil {
		return "", err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(out), nil
}

// promisify wraps a Go function to return a JavaScript Promise
func promisify(fn func(args []js.Value) (string, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) interface{} {
			resolve := promiseArgs[0]
			reject := promiseArgs[1]

			// Analysis can take a while; don't block the event loop.
			go func() {
				result, err := fn(args)
				if err != nil {
					errorConstructor := js.Global().Get("Error")
					errorObject := errorConstructor.New(err.Error())
					reject.Invoke(errorObject)
					return
				}

				resolve.Invoke(result)
			}()

			return nil
		})

		promiseConstructor := js.Global().Get("Promise")
		return promiseConstructor.New(handler)
	})
}

func main() {
	js.Global().Set("AnalyzeFixture", promisify(func(args []js.Value) (string, error) {
		switch len(args) {
		case 1:
			return AnalyzeFixture(args[0].String(), "")
		case 2:
			return AnalyzeFixture(args[0].String(), args[1].String())
		}
		return "", fmt.Errorf("AnalyzeFixture: expected 1 or 2 args (fixtureYAML, configYAML), got %v", len(args))
	}))

	js.Global().Set("FormatWarnings", promisify(func(args []js.Value) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("FormatWarnings: expected 1 arg (warnings JSON array), got %v", len(args))
		}

		var warnings []string
		if err := json.Unmarshal([]byte(args[0].String()), &warnings); err != nil {
			return "", fmt.Errorf("failed to parse warnings: %w", err)
		}
		return playground.FormatWarnings(warnings), nil
	}))

	// Keep the program running
	<-make(chan bool)
}
