package chart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// OutputVar is the global chart code must assign its HTML fragment to.
const OutputVar = "html_str"

const defaultMaxSteps = 5_000_000

// DefaultModules is the allow-list used when none is given.
var DefaultModules = []string{"matplotlib.pyplot", "pandas", "base64", "io"}

func init() {
	// Chart code is written in a scripting style: top-level loops and
	// reassignments are common.
	resolve.AllowGlobalReassign = true
	resolve.AllowSet = true
	resolve.AllowRecursion = true
}

// Sandbox validates and executes chart code.
//
// The import check is static: code may only load allow-listed modules, and
// those modules are implemented in Go with no file or network access. The
// interpreter offers nothing else beyond the Starlark universe. It is not a
// general-purpose isolation boundary.
//
// pyplot's tight_layout, yticks and tick_params are accepted and ignored:
// the plot lays itself out. legend is drawn on savefig.
type Sandbox struct {
	allowed  map[string]bool
	maxSteps uint64
}

type Option func(*Sandbox)

// WithModules replaces the allow-list.
func WithModules(modules ...string) Option {
	return func(s *Sandbox) {
		s.allowed = make(map[string]bool, len(modules))
		for _, m := range modules {
			s.allowed[m] = true
		}
	}
}

// WithMaxSteps bounds the number of interpreter steps per render.
func WithMaxSteps(n uint64) Option {
	return func(s *Sandbox) { s.maxSteps = n }
}

func NewSandbox(opts ...Option) *Sandbox {
	s := &Sandbox{maxSteps: defaultMaxSteps}
	WithModules(DefaultModules...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Modules returns the allow-list, sorted.
func (s *Sandbox) Modules() []string {
	out := make([]string, 0, len(s.allowed))
	for m := range s.allowed {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Render runs a visualize_data payload with the default sandbox.
func Render(raw string) (string, error) {
	return NewSandbox().Render(context.Background(), raw)
}

// Render parses raw into data and code, checks the code's imports, runs it
// with the data bound to df and returns the value it assigned to html_str.
func (s *Sandbox) Render(ctx context.Context, raw string) (string, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}
	return s.Run(ctx, payload)
}

// Run executes an already parsed payload.
func (s *Sandbox) Run(ctx context.Context, payload *Payload) (out string, err error) {
	code, err := rewriteImports(payload.Code, s.allowed)
	if err != nil {
		return "", err
	}
	file, err := syntax.Parse("chart.py", code, 0)
	if err != nil {
		return "", &SandboxError{Kind: KindSyntax, Message: err.Error()}
	}
	if err := checkImports(file, s.allowed); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	thread := &starlark.Thread{
		Name:  "chart",
		Load:  s.loader(newCanvas()),
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(s.maxSteps)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			out, err = "", &SandboxError{Kind: KindRuntimeFailure, Message: fmt.Sprint(r)}
		}
	}()

	predeclared := starlark.StringDict{"df": newFrame(payload.Data)}
	globals, err := starlark.ExecFile(thread, "chart.py", code, predeclared)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return "", &SandboxError{Kind: KindRuntimeFailure, Message: evalErr.Msg}
		}
		var syntaxErr syntax.Error
		if errors.As(err, &syntaxErr) {
			return "", &SandboxError{Kind: KindSyntax, Message: syntaxErr.Error()}
		}
		return "", &SandboxError{Kind: KindRuntimeFailure, Message: err.Error()}
	}

	value, ok := globals[OutputVar]
	if !ok {
		return "", &SandboxError{Kind: KindMissingOutput, Message: OutputVar + " was not assigned"}
	}
	html, ok := starlark.AsString(value)
	if !ok {
		return "", &SandboxError{Kind: KindMissingOutput, Message: fmt.Sprintf("%s is a %s, not a string", OutputVar, value.Type())}
	}
	if strings.TrimSpace(html) == "" {
		return "", &SandboxError{Kind: KindMissingOutput, Message: OutputVar + " is empty"}
	}
	return html, nil
}

// loader resolves load statements against the allow-list. Each module is
// bound under its own short name and also exports its members, so both
// load("io", "BytesIO") and load("io", io="io") work.
func (s *Sandbox) loader(c *canvas) func(*starlark.Thread, string) (starlark.StringDict, error) {
	return func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		if !s.allowed[module] {
			return nil, &SandboxError{Kind: KindDisallowedImport, Module: module}
		}
		var m *starlarkstruct.Module
		switch module {
		case "matplotlib.pyplot":
			m = c.module()
		case "pandas":
			m = pandasModule()
		case "io":
			m = ioModule()
		case "base64":
			m = base64Module()
		default:
			return nil, fmt.Errorf("module %s is not available", module)
		}
		dict := starlark.StringDict{exportName(module): m}
		for name, v := range m.Members {
			dict[name] = v
		}
		return dict, nil
	}
}
