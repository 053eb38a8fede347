package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/types"
)

const goodScript = `
local content = read_file("README.md")
write_file("README.md", content .. "\nupdated")
log("readme updated")
submit_result("append a line to the readme", {"README.md"})
`

func TestValidateAcceptsGoodScript(t *testing.T) {
	require.NoError(t, Validate(goodScript))
}

func TestValidateRejectsForbiddenConstructs(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"require call", `require("socket") submit_result("s", {})`},
		{"require statement", `local s = require "socket"
submit_result("s", {})`},
		{"io library", `io.open("/etc/passwd") submit_result("s", {})`},
		{"os library", `os.execute("rm -rf /") submit_result("s", {})`},
		{"load", `load("return 1")() submit_result("s", {})`},
		{"loadstring", `loadstring("return 1")() submit_result("s", {})`},
		{"dofile", `dofile("x.lua") submit_result("s", {})`},
		{"loadfile", `loadfile("x.lua") submit_result("s", {})`},
		{"debug library", `debug.getinfo(1) submit_result("s", {})`},
		{"package library", `package.loaded = {} submit_result("s", {})`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.script)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestValidateAllowsSimilarIdentifiers(t *testing.T) {
	// Identifiers merely containing forbidden substrings are fine
	script := `
local download = function() return 1 end
local myos = {}
download()
submit_result("s", {})
`
	assert.NoError(t, Validate(script))
}

func TestValidateRejectsSyntaxErrors(t *testing.T) {
	err := Validate(`if then else submit_result("s", {})`)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestValidateRequiresSubmitResult(t *testing.T) {
	err := Validate(`write_file("a", "b")`)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "submit_result")
}

func TestValidateRejectsEmptyScript(t *testing.T) {
	assert.ErrorIs(t, Validate(""), types.ErrValidation)
	assert.ErrorIs(t, Validate("   \n\t"), types.ErrValidation)
}
