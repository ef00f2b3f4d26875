package server

import (
	"regexp"
)

// The two production patterns served source files are rewritten on. Template
// literals are not parsed: a clause inside template text is rewritten like any
// other, and a specifier quoted with backticks is not matched; the textual
// approach accepts that limitation.
var (
	regImportFrom    = regexp.MustCompile(`(\bfrom\s*)("|')([^"'\n]+)("|')`)
	regDynamicImport = regexp.MustCompile(`(\bimport\s*\(\s*)("|')([^"'\n]+)("|')`)
)

// rewriteBareImports rewrites bare specifiers in `from "X"` and `import("X")`
// clauses to routed URLs under the module endpoint.
func rewriteBareImports(code string) string {
	rewrite := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(m string) string {
			a := re.FindStringSubmatch(m)
			specifier := a[3]
			if !isBareSpecifier(specifier) {
				return m
			}
			return a[1] + a[2] + modulesPrefix + specifier + a[4]
		})
	}
	return rewrite(regDynamicImport, rewrite(regImportFrom, code))
}

// scanBareSpecifiers collects every bare specifier and every relative
// specifier referenced by the given source text through static `from "X"` or
// dynamic `import("X")` clauses.
func scanBareSpecifiers(code string) (bare []string, relative []string) {
	collect := func(re *regexp.Regexp) {
		for _, a := range re.FindAllStringSubmatch(code, -1) {
			specifier := a[3]
			if isBareSpecifier(specifier) {
				bare = append(bare, specifier)
			} else if isRelativeSpecifier(specifier) {
				relative = append(relative, specifier)
			}
		}
	}
	collect(regImportFrom)
	collect(regDynamicImport)
	return
}
