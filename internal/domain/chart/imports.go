package chart

import (
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/syntax"
)

var (
	importLine     = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*$`)
	fromImportLine = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*$`)
	importName     = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+(\w+))?$`)
)

// rewriteImports turns Python import statements into Starlark load
// statements so that chart code written in the familiar style still goes
// through the allow-list:
//
//	import matplotlib.pyplot as plt  ->  load("matplotlib.pyplot", plt="pyplot")
//	from io import BytesIO           ->  load("io", BytesIO="BytesIO")
//
// "from a import b" where "a.b" is itself a module loads module "a.b".
func rewriteImports(code string, allowed map[string]bool) (string, error) {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if m := fromImportLine.FindStringSubmatch(line); m != nil {
			stmt, err := fromImportToLoad(m[2], m[3], allowed)
			if err != nil {
				return "", &SandboxError{Kind: KindSyntax, Message: fmt.Sprintf("line %d: %v", i+1, err)}
			}
			lines[i] = m[1] + stmt
			continue
		}
		if m := importLine.FindStringSubmatch(line); m != nil {
			stmt, err := importToLoad(m[2])
			if err != nil {
				return "", &SandboxError{Kind: KindSyntax, Message: fmt.Sprintf("line %d: %v", i+1, err)}
			}
			lines[i] = m[1] + stmt
		}
	}
	return strings.Join(lines, "\n"), nil
}

func importToLoad(spec string) (string, error) {
	var loads []string
	for _, part := range strings.Split(spec, ",") {
		m := importName.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return "", fmt.Errorf("cannot read import %q", part)
		}
		module, alias := m[1], m[2]
		if alias == "" {
			alias = exportName(module)
		}
		loads = append(loads, fmt.Sprintf("load(%q, %s=%q)", module, alias, exportName(module)))
	}
	return strings.Join(loads, "; "), nil
}

func fromImportToLoad(module, spec string, allowed map[string]bool) (string, error) {
	spec = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(spec), "("), ")")
	if strings.TrimSpace(spec) == "*" {
		return "", fmt.Errorf("wildcard imports are not supported")
	}
	var loads []string
	var bindings []string
	for _, part := range strings.Split(spec, ",") {
		m := importName.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil || strings.Contains(m[1], ".") {
			return "", fmt.Errorf("cannot read import %q", part)
		}
		name, alias := m[1], m[2]
		if alias == "" {
			alias = name
		}
		if sub := module + "." + name; allowed[sub] {
			loads = append(loads, fmt.Sprintf("load(%q, %s=%q)", sub, alias, exportName(sub)))
			continue
		}
		bindings = append(bindings, fmt.Sprintf("%s=%q", alias, name))
	}
	if len(bindings) > 0 {
		loads = append(loads, fmt.Sprintf("load(%q, %s)", module, strings.Join(bindings, ", ")))
	}
	return strings.Join(loads, "; "), nil
}

// exportName is the name under which a module exposes itself, e.g.
// "pyplot" for "matplotlib.pyplot".
func exportName(module string) string {
	if i := strings.LastIndex(module, "."); i >= 0 {
		return module[i+1:]
	}
	return module
}

// checkImports parses code and returns the first loaded module that is not
// allowed. The check is static: it only looks at load statements.
func checkImports(file *syntax.File, allowed map[string]bool) error {
	var denied string
	syntax.Walk(file, func(n syntax.Node) bool {
		if denied != "" {
			return false
		}
		if load, ok := n.(*syntax.LoadStmt); ok {
			if name := load.ModuleName(); !allowed[name] {
				denied = name
			}
		}
		return true
	})
	if denied != "" {
		return &SandboxError{Kind: KindDisallowedImport, Module: denied}
	}
	return nil
}
