// Package sandbox runs user-supplied Lua scripts in a restricted
// gopher-lua interpreter with a fixed capability surface, the Go
// equivalent of the original engine's mlua-based sandbox
// (original_source/actions/src/script_action.rs).
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureCapBytes mirrors actions.captureCapBytes; duplicated rather
// than imported to keep sandbox free of a dependency on the actions
// package (actions depends on sandbox, not the reverse).
const captureCapBytes = 64 * 1024

// Input is the table of values passed as the single argument to the
// script's entry function, mirroring the Event.
type Input struct {
	ID        string
	Timestamp time.Time
	Kind      string
	Source    string
	Metadata  map[string]string
}

// Output is the parsed return value of a successful script invocation.
type Output struct {
	Success bool
	Message string
}

// Error reports why a script invocation failed: a Lua runtime error, a
// capability violation, a timeout, or a malformed return value. All
// surface as action failure per SPEC_FULL.md §4.5/§7.
type Error struct {
	Timeout bool
	Msg     string
}

func (e *Error) Error() string {
	if e.Timeout {
		return "script timed out"
	}
	return e.Msg
}

// AllowedRoots computes the path allow-list named in SPEC_FULL.md
// §4.5: the current working directory subtree, the process temporary
// directory, and the current user's documents directory.
func AllowedRoots() []string {
	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	roots = append(roots, os.TempDir())
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, "Documents"))
	}
	return roots
}

func isPathAllowed(path string, roots []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	for _, root := range roots {
		root = filepath.Clean(root)
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// cachedSource amortises disk reads across invocations of the same
// script path, keyed by modification time so edits are observed
// without a process restart. Runtime state (the LState) is never
// cached, per SPEC_FULL.md §9 — only the source text is.
type cachedSource struct {
	content string
	modTime time.Time
}

// Runner executes scripts against fresh interpreters, caching source
// text by path+mtime.
type Runner struct {
	mu      sync.Mutex
	sources map[string]cachedSource
	roots   []string
}

// NewRunner constructs a Runner with the default path allow-list.
func NewRunner() *Runner {
	return &Runner{
		sources: make(map[string]cachedSource),
		roots:   AllowedRoots(),
	}
}

// Run loads scriptPath (or reuses a cached read of it), and invokes
// functionName with in as its single argument. A fresh *lua.LState is
// constructed for every call; it is closed on return or, on timeout,
// by a watchdog goroutine racing the invocation.
func (r *Runner) Run(ctx context.Context, scriptPath, functionName string, in Input, timeout time.Duration) (Output, error) {
	content, err := r.readScript(scriptPath)
	if err != nil {
		return Output{}, &Error{Msg: fmt.Sprintf("reading %s: %v", scriptPath, err)}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type runResult struct {
		out Output
		err error
	}
	done := make(chan runResult, 1)
	ls := lua.NewState(lua.Options{SkipOpenLibs: true})
	setupSandbox(ls, r.roots)

	go func() {
		out, err := invoke(ls, content, functionName, in)
		done <- runResult{out, err}
	}()

	select {
	case res := <-done:
		ls.Close()
		return res.out, res.err
	case <-runCtx.Done():
		// Lua has no preemption point; closing the state is the only
		// teardown available. The invoking goroutine may still be
		// inside CallByParam against now-closed state and is abandoned
		// rather than waited on — scripts hitting this path are
		// expected to be misbehaving, not routine.
		ls.Close()
		return Output{}, &Error{Timeout: true}
	}
}

func (r *Runner) readScript(scriptPath string) (string, error) {
	info, err := os.Stat(scriptPath)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if c, ok := r.sources[scriptPath]; ok && c.modTime.Equal(info.ModTime()) {
		r.mu.Unlock()
		return c.content, nil
	}
	r.mu.Unlock()

	raw, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", err
	}
	content := string(raw)

	r.mu.Lock()
	r.sources[scriptPath] = cachedSource{content: content, modTime: info.ModTime()}
	r.mu.Unlock()

	return content, nil
}

func invoke(ls *lua.LState, source string, functionName string, in Input) (Output, error) {
	if err := ls.DoString(source); err != nil {
		return Output{}, &Error{Msg: "loading script: " + err.Error()}
	}

	entry := ls.GetGlobal(functionName)
	if entry.Type() != lua.LTFunction {
		return Output{}, &Error{Msg: fmt.Sprintf("entry function %q not found", functionName)}
	}

	arg := inputToTable(ls, in)
	if err := ls.CallByParam(lua.P{Fn: entry, NRet: 1, Protect: true}, arg); err != nil {
		return Output{}, &Error{Msg: "runtime error: " + err.Error()}
	}

	ret := ls.Get(-1)
	ls.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Output{}, &Error{Msg: "entry function did not return a table"}
	}
	successVal := tbl.RawGetString("success")
	success, ok := successVal.(lua.LBool)
	if !ok {
		return Output{}, &Error{Msg: "returned table missing boolean 'success' field"}
	}
	message := ""
	if m, ok := tbl.RawGetString("message").(lua.LString); ok {
		message = string(m)
	}
	if !bool(success) {
		return Output{}, &Error{Msg: message}
	}
	return Output{Success: true, Message: message}, nil
}

func inputToTable(ls *lua.LState, in Input) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("id", lua.LString(in.ID))
	t.RawSetString("timestamp", lua.LString(in.Timestamp.Format(time.RFC3339)))
	t.RawSetString("kind", lua.LString(in.Kind))
	t.RawSetString("source", lua.LString(in.Source))
	meta := ls.NewTable()
	for k, v := range in.Metadata {
		meta.RawSetString(k, lua.LString(v))
	}
	t.RawSetString("metadata", meta)
	return t
}

// setupSandbox opens only the base/string/table/math libraries (never
// os/io/package/debug) and installs the restricted log/exec/http/
// json/fs/os capability tables, mirroring setup_sandbox in
// original_source/actions/src/script_action.rs.
func setupSandbox(ls *lua.LState, roots []string) {
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		ls.Push(ls.NewFunction(pair.fn))
		ls.Push(lua.LString(pair.name))
		ls.Call(1, 0)
	}

	g := ls.G.Global
	for _, dangerous := range []string{"dofile", "loadfile", "load", "require", "io", "debug", "collectgarbage"} {
		g.RawSetString(dangerous, lua.LNil)
	}

	g.RawSetString("log", buildLogTable(ls))
	g.RawSetString("exec", ls.NewFunction(execRun))
	g.RawSetString("http", buildHTTPTable(ls))
	g.RawSetString("json", buildJSONTable(ls))
	g.RawSetString("fs", buildFSTable(ls, roots))
	g.RawSetString("os", buildOSTable(ls))
}

func buildLogTable(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("debug", ls.NewFunction(scriptLogFn(zerolog.DebugLevel)))
	t.RawSetString("info", ls.NewFunction(scriptLogFn(zerolog.InfoLevel)))
	t.RawSetString("warn", ls.NewFunction(scriptLogFn(zerolog.WarnLevel)))
	t.RawSetString("error", ls.NewFunction(scriptLogFn(zerolog.ErrorLevel)))
	return t
}

func scriptLogFn(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.ToString(1)
		log.WithLevel(level).Str("source", "script").Msg(msg)
		return 0
	}
}

func execRun(L *lua.LState) int {
	program := L.ToString(1)
	argsTable := L.ToTable(2)
	var args []string
	if argsTable != nil {
		argsTable.ForEach(func(_, v lua.LValue) {
			args = append(args, v.String())
		})
	}

	cmd := exec.Command(program, args...)
	out, err := cmd.Output()

	result := L.NewTable()
	if err != nil {
		exitErr, _ := err.(*exec.ExitError)
		code := -1
		stderr := err.Error()
		if exitErr != nil {
			code = exitErr.ExitCode()
			stderr = string(exitErr.Stderr)
		}
		result.RawSetString("exit_code", lua.LNumber(code))
		result.RawSetString("stdout", lua.LString(""))
		result.RawSetString("stderr", lua.LString(stderr))
	} else {
		result.RawSetString("exit_code", lua.LNumber(0))
		result.RawSetString("stdout", lua.LString(capString(string(out))))
		result.RawSetString("stderr", lua.LString(""))
	}
	L.Push(result)
	return 1
}

func capString(s string) string {
	if len(s) <= captureCapBytes {
		return s
	}
	return s[:captureCapBytes] + "...[truncated]"
}

func buildHTTPTable(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("get", ls.NewFunction(httpDo("GET")))
	t.RawSetString("post", ls.NewFunction(httpDo("POST")))
	return t
}

func buildJSONTable(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("encode", ls.NewFunction(jsonEncode))
	t.RawSetString("decode", ls.NewFunction(jsonDecode))
	return t
}

func httpDo(method string) lua.LGFunction {
	return func(L *lua.LState) int {
		url := L.ToString(1)
		var body string
		if L.GetTop() >= 2 {
			body = L.ToString(2)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		req, err := http.NewRequest(method, url, strings.NewReader(body))
		if err != nil {
			L.RaiseError("http.%s: %v", strings.ToLower(method), err)
			return 0
		}
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		result := L.NewTable()
		if err != nil {
			result.RawSetString("status", lua.LNumber(0))
			result.RawSetString("body", lua.LString(""))
			result.RawSetString("error", lua.LString(err.Error()))
			L.Push(result)
			return 1
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, captureCapBytes))

		result.RawSetString("status", lua.LNumber(resp.StatusCode))
		result.RawSetString("body", lua.LString(capString(string(respBody))))
		result.RawSetString("error", lua.LNil)
		L.Push(result)
		return 1
	}
}

func luaToGo(v lua.LValue) any {
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return bool(v.(lua.LBool))
	case lua.LTNumber:
		return float64(v.(lua.LNumber))
	case lua.LTString:
		return string(v.(lua.LString))
	case lua.LTTable:
		t := v.(*lua.LTable)
		// A table with a contiguous 1..N integer key run is treated as
		// an array; anything else is treated as an object.
		length := t.Len()
		if length > 0 {
			arr := make([]any, 0, length)
			for i := 1; i <= length; i++ {
				arr = append(arr, luaToGo(t.RawGetInt(i)))
			}
			return arr
		}
		obj := map[string]any{}
		t.ForEach(func(k, val lua.LValue) {
			obj[k.String()] = luaToGo(val)
		})
		return obj
	default:
		return v.String()
	}
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, goToLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, goToLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func jsonEncode(L *lua.LState) int {
	v := L.Get(1)
	data, err := json.Marshal(luaToGo(v))
	if err != nil {
		L.RaiseError("json encode error: %v", err)
		return 0
	}
	L.Push(lua.LString(data))
	return 1
}

func jsonDecode(L *lua.LState) int {
	s := L.ToString(1)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		L.RaiseError("json decode error: %v", err)
		return 0
	}
	L.Push(goToLua(L, v))
	return 1
}

func buildFSTable(ls *lua.LState, roots []string) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("exists", ls.NewFunction(func(L *lua.LState) int {
		path := L.ToString(1)
		if !isPathAllowed(path, roots) {
			L.RaiseError("fs.exists rejected: path %q outside allowed directories", path)
			return 1
		}
		_, err := os.Stat(path)
		L.Push(lua.LBool(err == nil))
		return 1
	}))
	t.RawSetString("file_size", ls.NewFunction(func(L *lua.LState) int {
		path := L.ToString(1)
		if !isPathAllowed(path, roots) {
			L.RaiseError("fs.file_size rejected: path %q outside allowed directories", path)
			return 1
		}
		info, err := os.Stat(path)
		if err != nil {
			L.Push(lua.LNumber(-1))
			return 1
		}
		L.Push(lua.LNumber(info.Size()))
		return 1
	}))
	t.RawSetString("basename", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(filepath.Base(L.ToString(1))))
		return 1
	}))
	t.RawSetString("move", ls.NewFunction(func(L *lua.LState) int {
		src, dst := L.ToString(1), L.ToString(2)
		if !isPathAllowed(src, roots) || !isPathAllowed(dst, roots) {
			L.RaiseError("fs.move rejected: path %q or %q outside allowed directories", src, dst)
			return 1
		}
		L.Push(lua.LBool(os.Rename(src, dst) == nil))
		return 1
	}))
	t.RawSetString("delete", ls.NewFunction(func(L *lua.LState) int {
		path := L.ToString(1)
		if !isPathAllowed(path, roots) {
			L.RaiseError("fs.delete rejected: path %q outside allowed directories", path)
			return 1
		}
		L.Push(lua.LBool(os.Remove(path) == nil))
		return 1
	}))
	return t
}

func buildOSTable(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("time", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	t.RawSetString("date", ls.NewFunction(func(L *lua.LState) int {
		format := "2006-01-02 15:04:05"
		if L.GetTop() >= 1 && L.Get(1).Type() == lua.LTString {
			format = goTimeFormat(L.ToString(1))
		}
		L.Push(lua.LString(time.Now().Format(format)))
		return 1
	}))
	return t
}

// goTimeFormat translates a handful of common strftime directives to
// Go's reference-time layout; scripts are expected to use the small
// subset documented for this sandbox (%Y-%m-%d %H:%M:%S and similar).
func goTimeFormat(strftime string) string {
	replacements := map[string]string{
		"%Y": "2006", "%m": "01", "%d": "02",
		"%H": "15", "%M": "04", "%S": "05",
	}
	out := strftime
	for k, v := range replacements {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}
