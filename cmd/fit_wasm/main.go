//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/export"
	"github.com/lucasjlepore/fitview/fitlib"
	"github.com/lucasjlepore/fitview/options"
	"github.com/lucasjlepore/fitview/settings"
)

var decoder *fitview.Decoder

func main() {
	store := settings.NewMemoryStore()
	decoder = fitview.New(fitview.Config{
		Library: fitlib.Loader(zap.NewNop()),
		Local:   store,
		Source:  "fit_wasm",
	})
	decoder.Initialize(fitview.Collaborators{Settings: store})

	js.Global().Set("decodeFitFile", js.FuncOf(decodeFitFile))
	js.Global().Set("updateDecoderOptions", js.FuncOf(updateDecoderOptions))
	select {}
}

// decodeFitFile(bytes Uint8Array, overrides object, exportFormat string)
// returns {ok, result} where result is the decode Result JSON text, plus
// zip (Uint8Array) when exportFormat is set and the decode succeeded.
func decodeFitFile(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return failure("expected arguments: fileBytes(Uint8Array), overrides(object), exportFormat(string)")
	}
	var input any
	fileArg := args[0]
	if !fileArg.IsUndefined() && !fileArg.IsNull() && fileArg.Type() == js.TypeObject && !fileArg.Get("length").IsUndefined() {
		data := make([]byte, fileArg.Get("length").Int())
		js.CopyBytesToGo(data, fileArg)
		input = data
	}

	overrides := options.DecoderOptions{}
	if len(args) > 1 {
		for _, name := range options.Names() {
			v := args[1]
			if v.IsUndefined() || v.IsNull() {
				break
			}
			if field := v.Get(name); field.Type() == js.TypeBoolean {
				overrides[name] = field.Bool()
			}
		}
	}

	res, err := decoder.DecodeFitFile(context.Background(), input, overrides, nil)
	if err != nil {
		if fe, ok := err.(*fitview.FitDecodeError); ok {
			payload, _ := json.Marshal(fe)
			return map[string]any{"ok": false, "error": fe.Message, "details": string(payload)}
		}
		return failure(err.Error())
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return failure(fmt.Sprintf("encode result: %v", err))
	}
	out := map[string]any{"ok": res.OK(), "result": string(payload)}

	if format := getString(args, 2); format != "" && res.OK() {
		artifacts, err := export.Bundle(res, export.Options{Format: format, SourceName: "input.fit"})
		if err != nil {
			return failure(fmt.Sprintf("export: %v", err))
		}
		zipBytes, err := artifacts.Zip()
		if err != nil {
			return failure(fmt.Sprintf("create zip: %v", err))
		}
		zipped := js.Global().Get("Uint8Array").New(len(zipBytes))
		js.CopyBytesToJS(zipped, zipBytes)
		out["zip"] = zipped
		out["files"] = stringsToAny(artifacts.Names())
		out["warnings"] = stringsToAny(artifacts.Warnings)
	}
	return out
}

// updateDecoderOptions(json string) persists options for the session.
func updateDecoderOptions(_ js.Value, args []js.Value) any {
	candidate, err := options.FromAny(getString(args, 0))
	if err != nil {
		return failure(err.Error())
	}
	res := decoder.UpdateOptions(context.Background(), candidate)
	return map[string]any{"ok": res.Success, "errors": stringsToAny(res.Errors)}
}

func failure(msg string) map[string]any {
	return map[string]any{"ok": false, "error": msg}
}

func getString(args []js.Value, i int) string {
	if len(args) <= i {
		return ""
	}
	v := args[i]
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
