package executor

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// registerConsole installs a console global whose log/info/warn/error
// methods append a formatted line to logs, surfaced back on
// ExecutionResult.Logs for the caller to inspect (the MCP execute_task
// result and the `test` CLI command both print it).
func registerConsole(rt *goja.Runtime, logs *[]string) {
	console := rt.NewObject()
	logFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprintf("%v", arg.Export())
			}
			*logs = append(*logs, "["+level+"] "+strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFn("log"))
	_ = console.Set("info", logFn("info"))
	_ = console.Set("warn", logFn("warn"))
	_ = console.Set("error", logFn("error"))
	_ = rt.Set("console", console)
}

// fetchResponse is the shape a task script sees from fetch(url, opts).
type fetchResponse struct {
	Status int    `json:"status"`
	OK     bool   `json:"ok"`
	Body   string `json:"body"`
}

// registerFetch installs a synchronous fetch(url, opts) global, bounded by
// timeout. Tasks are plain synchronous functions (no event loop), so this
// blocks the calling goroutine rather than returning a Promise. The request
// is not bound to ctx, so cancelling the execution does not abort an
// in-flight fetch; the http.Client's own timeout bounds it, independent of
// the script's execution deadline.
func registerFetch(rt *goja.Runtime, timeout time.Duration) {
	client := &http.Client{Timeout: timeout}
	_ = rt.Set("fetch", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(rt.NewTypeError("fetch requires a url argument"))
		}
		url := call.Arguments[0].String()

		method := http.MethodGet
		var body io.Reader
		if len(call.Arguments) > 1 {
			opts := call.Arguments[1].ToObject(rt)
			if m := opts.Get("method"); m != nil {
				method = strings.ToUpper(m.String())
			}
			if b := opts.Get("body"); b != nil {
				body = strings.NewReader(b.String())
			}
		}

		req, err := http.NewRequest(method, url, body)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		resp, err := client.Do(req)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			panic(rt.NewGoError(err))
		}

		return rt.ToValue(fetchResponse{
			Status: resp.StatusCode,
			OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
			Body:   string(data),
		})
	})
}
