package analysis

import (
	"regexp"
	"strings"
)

var (
	jsComments   = regexp.MustCompile(`(?s:/\*.*?\*/)|(?m:^[ \t]*//.*$)`)
	jsImport     = regexp.MustCompile(`(?m)^\s*import\s+(?:(type\s+)?([^'"]+?)\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequire    = regexp.MustCompile(`(?:(?:const|let|var)\s+([^=]+?)\s*=\s*)?require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsDynImport  = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	jsExportDecl = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)
	jsExportList = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}`)
	jsExportDef  = regexp.MustCompile(`(?m)^\s*export\s+default\s+([A-Za-z_$][\w$]*)\s*;?\s*$`)
	jsCJSExport  = regexp.MustCompile(`\b(?:module\.)?exports\.([A-Za-z_$][\w$]*)\s*=`)
	jsCJSObject  = regexp.MustCompile(`module\.exports\s*=\s*\{([^}]*)\}`)
	jsFunction   = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\*?\s+([A-Za-z_$][\w$]*)`)
	jsArrow      = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`)
	jsClass      = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsVariable   = regexp.MustCompile(`(?m)^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)`)
	jsBranch     = regexp.MustCompile(`\b(?:if|for|while|case|catch)\b|&&|\|\||\?\?|\?\s`)

	pyImport   = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)`)
	pyFrom     = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\s+\(?([^)\n]+)\)?`)
	pyFunction = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+(\w+)`)
	pyClass    = regexp.MustCompile(`(?m)^class\s+(\w+)`)
	pyVariable = regexp.MustCompile(`(?m)^([A-Za-z_]\w*)\s*(?::[^=\n]+)?=[^=]`)
	pyAll      = regexp.MustCompile(`(?s)__all__\s*=\s*[\[(](.*?)[\])]`)
	pyQuoted   = regexp.MustCompile(`['"]([^'"]+)['"]`)
	pyComments = regexp.MustCompile(`(?m)#.*$`)
	pyBranch   = regexp.MustCompile(`\b(?:if|elif|for|while|except|and|or)\b`)
)

func summarizeJS(s *Summary, src string) {
	code := jsComments.ReplaceAllString(src, "")

	for _, m := range jsImport.FindAllStringSubmatch(code, -1) {
		s.Imports = append(s.Imports, Import{Source: m[3], Symbols: jsImportSymbols(m[2])})
	}
	for _, m := range jsRequire.FindAllStringSubmatch(code, -1) {
		s.Imports = append(s.Imports, Import{Source: m[2], Symbols: jsImportSymbols(m[1])})
	}
	for _, m := range jsDynImport.FindAllStringSubmatch(code, -1) {
		s.Imports = append(s.Imports, Import{Source: m[1]})
	}

	for _, m := range jsExportDecl.FindAllStringSubmatch(code, -1) {
		s.Exports = append(s.Exports, m[1])
	}
	for _, m := range jsExportList.FindAllStringSubmatch(code, -1) {
		s.Exports = append(s.Exports, listNames(m[1], true)...)
	}
	for _, m := range jsExportDef.FindAllStringSubmatch(code, -1) {
		s.Exports = append(s.Exports, m[1])
	}
	for _, m := range jsCJSExport.FindAllStringSubmatch(code, -1) {
		s.Exports = append(s.Exports, m[1])
	}
	for _, m := range jsCJSObject.FindAllStringSubmatch(code, -1) {
		s.Exports = append(s.Exports, listNames(m[1], false)...)
	}

	arrows := make(map[string]bool)
	for _, m := range jsFunction.FindAllStringSubmatch(code, -1) {
		s.Functions = append(s.Functions, m[1])
	}
	for _, m := range jsArrow.FindAllStringSubmatch(code, -1) {
		s.Functions = append(s.Functions, m[1])
		arrows[m[1]] = true
	}
	for _, m := range jsClass.FindAllStringSubmatch(code, -1) {
		s.Classes = append(s.Classes, m[1])
	}
	for _, m := range jsVariable.FindAllStringSubmatch(code, -1) {
		if !arrows[m[1]] {
			s.Variables = append(s.Variables, m[1])
		}
	}

	s.Complexity = 1 + len(jsBranch.FindAllStringIndex(stripStrings(code), -1))
}

// jsImportSymbols turns an import clause such as `React, { useState as us }`
// or `* as path` into local names.
func jsImportSymbols(clause string) []string {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil
	}
	var named []string
	if open := strings.Index(clause, "{"); open >= 0 {
		end := strings.Index(clause, "}")
		if end < open {
			end = len(clause)
		}
		named = listNames(clause[open+1:end], true)
		clause = clause[:open] + clause[min(end+1, len(clause)):]
	}
	var out []string
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "*") {
			if i := strings.Index(part, " as "); i >= 0 {
				out = append(out, strings.TrimSpace(part[i+4:]))
			}
			continue
		}
		out = append(out, part)
	}
	out = append(out, named...)
	return out
}

// listNames parses `a, b as c, type d` (useAlias picks the alias) or the
// body of an object literal `a, b: c`.
func listNames(list string, useAlias bool) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "type "))
		if part == "" {
			continue
		}
		if i := strings.Index(part, " as "); i >= 0 {
			if useAlias {
				part = part[i+4:]
			} else {
				part = part[:i]
			}
		}
		if i := strings.IndexAny(part, ":("); i >= 0 {
			part = part[:i]
		}
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var quotedStrings = regexp.MustCompile("(?s)`(?:[^`\\\\]|\\\\.)*`|\"(?:[^\"\\\\\\n]|\\\\.)*\"|'(?:[^'\\\\\\n]|\\\\.)*'")

// stripStrings blanks string literals so keywords inside them are not
// counted as branches.
func stripStrings(code string) string {
	return quotedStrings.ReplaceAllString(code, `""`)
}

func summarizePython(s *Summary, src string) {
	code := pyComments.ReplaceAllString(src, "")

	for _, m := range pyImport.FindAllStringSubmatch(code, -1) {
		for _, part := range strings.Split(m[1], ",") {
			fields := strings.Fields(part)
			if len(fields) == 0 {
				continue
			}
			imp := Import{Source: fields[0]}
			if len(fields) == 3 && fields[1] == "as" {
				imp.Symbols = []string{fields[2]}
			}
			s.Imports = append(s.Imports, imp)
		}
	}
	for _, m := range pyFrom.FindAllStringSubmatch(code, -1) {
		s.Imports = append(s.Imports, Import{Source: m[1], Symbols: listNames(m[2], true)})
	}

	for _, m := range pyFunction.FindAllStringSubmatch(code, -1) {
		s.Functions = append(s.Functions, m[1])
	}
	for _, m := range pyClass.FindAllStringSubmatch(code, -1) {
		s.Classes = append(s.Classes, m[1])
	}
	for _, m := range pyVariable.FindAllStringSubmatch(code, -1) {
		if m[1] != "__all__" {
			s.Variables = append(s.Variables, m[1])
		}
	}

	if m := pyAll.FindStringSubmatch(code); m != nil {
		for _, q := range pyQuoted.FindAllStringSubmatch(m[1], -1) {
			s.Exports = append(s.Exports, q[1])
		}
	} else {
		for _, group := range [][]string{s.Functions, s.Classes, s.Variables} {
			for _, name := range group {
				if isExportedPython(name) {
					s.Exports = append(s.Exports, name)
				}
			}
		}
	}

	s.Complexity = 1 + len(pyBranch.FindAllStringIndex(stripStrings(code), -1))
}
