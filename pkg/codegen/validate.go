package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/gopher-lua/parse"

	"github.com/cairnlabs/cairn/pkg/types"
)

// forbiddenConstructs are rejected before execution. The sandbox also
// removes these at runtime; failing fast here turns a doomed run into
// a cheap validation error.
var forbiddenConstructs = []struct {
	name string
	re   *regexp.Regexp
}{
	{"require", regexp.MustCompile(`\brequire\b`)},
	{"io library", regexp.MustCompile(`\bio\s*\.`)},
	{"os library", regexp.MustCompile(`\bos\s*\.`)},
	{"load", regexp.MustCompile(`\bload\s*\(`)},
	{"loadstring", regexp.MustCompile(`\bloadstring\s*\(`)},
	{"dofile", regexp.MustCompile(`\bdofile\s*\(`)},
	{"loadfile", regexp.MustCompile(`\bloadfile\s*\(`)},
	{"debug library", regexp.MustCompile(`\bdebug\s*\.`)},
	{"package library", regexp.MustCompile(`\bpackage\s*\.`)},
}

var submitCallRe = regexp.MustCompile(`\bsubmit_result\s*\(`)

// Validate statically checks a generated script: it must parse as Lua,
// must not touch any forbidden construct, and must call submit_result.
// A failing script never reaches the sandbox.
func Validate(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%w: empty script", types.ErrValidation)
	}

	if _, err := parse.Parse(strings.NewReader(script), "script.lua"); err != nil {
		return fmt.Errorf("%w: not valid Lua: %v", types.ErrValidation, err)
	}

	for _, f := range forbiddenConstructs {
		if f.re.MatchString(script) {
			return fmt.Errorf("%w: forbidden construct: %s", types.ErrValidation, f.name)
		}
	}

	if !submitCallRe.MatchString(script) {
		return fmt.Errorf("%w: script never calls submit_result", types.ErrValidation)
	}
	return nil
}
