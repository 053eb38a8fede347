package sandbox

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lua "github.com/yuin/gopher-lua"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/types"
)

// maxFileBytes is the per-file limit for read_file and write_file.
const maxFileBytes = 10 << 20 // 10 MiB

// Workspace is the slice of the overlay API scripts reach through.
// Every call operates on the agent's own layer with read-through to
// stable; scripts never see another agent's writes.
type Workspace interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	ReadDir(path string) ([]string, error)
	Exists(path string) (bool, error)
	Paths() ([]string, error)
	KVSet(key string, value []byte) error
}

// LLM answers in-script ask_llm calls.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// taggedSubmission is the KV form of a script's submit_result call.
type taggedSubmission struct {
	AgentID    string           `json:"agent_id"`
	Submission types.Submission `json:"submission"`
}

// Funcs binds the script-facing function set to one agent's
// resources. LLM may be nil, in which case ask_llm reports the
// backend unavailable.
type Funcs struct {
	AgentID   string
	Workspace Workspace
	LLM       LLM

	ctx context.Context
}

// register installs the function set as globals. The context bounds
// ask_llm calls to the execution deadline.
func (f *Funcs) register(L *lua.LState, ctx context.Context) {
	f.ctx = ctx
	for name, fn := range map[string]lua.LGFunction{
		"read_file":      f.readFile,
		"write_file":     f.writeFile,
		"list_dir":       f.listDir,
		"file_exists":    f.fileExists,
		"search_files":   f.searchFiles,
		"search_content": f.searchContent,
		"ask_llm":        f.askLLM,
		"submit_result":  f.submitResult,
		"log":            f.logMessage,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// validPath enforces the script-facing path rules: relative only,
// nothing containing "..".
func validPath(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "/") {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}

func (f *Funcs) readFile(L *lua.LState) int {
	path := L.CheckString(1)
	if !validPath(path) {
		L.RaiseError("read_file: %v: %q", types.ErrInvalidPath, path)
		return 0
	}
	data, err := f.Workspace.ReadFile(path)
	if err != nil {
		L.RaiseError("read_file: %v", err)
		return 0
	}
	if len(data) > maxFileBytes {
		L.RaiseError("read_file: %v: %s is over %d bytes", types.ErrTooLarge, path, maxFileBytes)
		return 0
	}
	L.Push(lua.LString(data))
	return 1
}

func (f *Funcs) writeFile(L *lua.LState) int {
	path := L.CheckString(1)
	content := L.CheckString(2)
	if !validPath(path) {
		L.RaiseError("write_file: %v: %q", types.ErrInvalidPath, path)
		return 0
	}
	if len(content) > maxFileBytes {
		L.RaiseError("write_file: %v: %s is over %d bytes", types.ErrTooLarge, path, maxFileBytes)
		return 0
	}
	if err := f.Workspace.WriteFile(path, []byte(content)); err != nil {
		L.RaiseError("write_file: %v", err)
		return 0
	}
	L.Push(lua.LTrue)
	return 1
}

func (f *Funcs) listDir(L *lua.LState) int {
	path := L.OptString(1, ".")
	if path == "" {
		path = "."
	}
	if path != "." && !validPath(path) {
		L.RaiseError("list_dir: %v: %q", types.ErrInvalidPath, path)
		return 0
	}
	names, err := f.Workspace.ReadDir(path)
	if err != nil {
		L.RaiseError("list_dir: %v", err)
		return 0
	}
	tbl := L.NewTable()
	for _, name := range names {
		tbl.Append(lua.LString(name))
	}
	L.Push(tbl)
	return 1
}

func (f *Funcs) fileExists(L *lua.LState) int {
	path := L.CheckString(1)
	if !validPath(path) {
		L.RaiseError("file_exists: %v: %q", types.ErrInvalidPath, path)
		return 0
	}
	exists, err := f.Workspace.Exists(path)
	if err != nil {
		L.RaiseError("file_exists: %v", err)
		return 0
	}
	L.Push(lua.LBool(exists))
	return 1
}

func (f *Funcs) searchFiles(L *lua.LState) int {
	pattern := L.CheckString(1)

	// A bare "*.ext" means "anywhere in the tree"
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**") {
		pattern = "**/" + pattern
	}

	paths, err := f.Workspace.Paths()
	if err != nil {
		L.RaiseError("search_files: %v", err)
		return 0
	}

	tbl := L.NewTable()
	for _, p := range paths {
		ok, matchErr := doublestar.Match(pattern, p)
		if matchErr != nil {
			// Bad pattern matches nothing
			break
		}
		if ok {
			tbl.Append(lua.LString(p))
		}
	}
	L.Push(tbl)
	return 1
}

func (f *Funcs) searchContent(L *lua.LState) int {
	pattern := L.CheckString(1)
	root := L.OptString(2, ".")
	if root == "" {
		root = "."
	}

	tbl := L.NewTable()
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Bad regex matches nothing
		L.Push(tbl)
		return 1
	}

	paths, err := f.Workspace.Paths()
	if err != nil {
		L.RaiseError("search_content: %v", err)
		return 0
	}
	if root != "." {
		root = strings.TrimPrefix(root, "/")
		filtered := paths[:0]
		for _, p := range paths {
			if p == root || strings.HasPrefix(p, root+"/") {
				filtered = append(filtered, p)
			}
		}
		paths = filtered
	}
	sort.Strings(paths)

	for _, p := range paths {
		data, err := f.Workspace.ReadFile(p)
		if err != nil || len(data) > maxFileBytes {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				match := L.NewTable()
				match.RawSetString("file", lua.LString(p))
				match.RawSetString("line", lua.LNumber(i+1))
				match.RawSetString("text", lua.LString(line))
				tbl.Append(match)
			}
		}
	}
	L.Push(tbl)
	return 1
}

func (f *Funcs) askLLM(L *lua.LState) int {
	prompt := L.CheckString(1)
	extra := L.OptString(2, "")
	if f.LLM == nil {
		L.RaiseError("ask_llm: %v", types.ErrLLMUnavailable)
		return 0
	}
	if extra != "" {
		prompt = prompt + "\n\nContext:\n" + extra
	}
	resp, err := f.LLM.Complete(f.ctx, prompt)
	if err != nil {
		L.RaiseError("ask_llm: %v", err)
		return 0
	}
	L.Push(lua.LString(resp))
	return 1
}

func (f *Funcs) submitResult(L *lua.LState) int {
	summary := L.CheckString(1)
	filesTbl := L.CheckTable(2)

	changed := make([]string, 0, filesTbl.Len())
	for i := 1; i <= filesTbl.Len(); i++ {
		if s, ok := filesTbl.RawGetInt(i).(lua.LString); ok {
			changed = append(changed, string(s))
		}
	}

	payload, err := json.Marshal(taggedSubmission{
		AgentID: f.AgentID,
		Submission: types.Submission{
			Summary:      summary,
			ChangedFiles: changed,
		},
	})
	if err != nil {
		L.RaiseError("submit_result: %v", err)
		return 0
	}
	if err := f.Workspace.KVSet("submission", payload); err != nil {
		L.RaiseError("submit_result: %v", err)
		return 0
	}
	L.Push(lua.LTrue)
	return 1
}

func (f *Funcs) logMessage(L *lua.LState) int {
	msg := L.CheckString(1)
	lg := log.WithAgentID(f.AgentID)
	lg.Info().
		Str("component", "script").
		Msg(msg)
	L.Push(lua.LTrue)
	return 1
}
