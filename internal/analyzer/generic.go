package analyzer

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// GenericAnalyzer is the grammar-agnostic fallback used when no specialized
// analyzer is registered for a language. It scans line-by-line with
// heuristic patterns covering the common definition keywords, so unknown
// languages still contribute symbols and call edges, just at lower fidelity.
type GenericAnalyzer struct{}

// NewGeneric creates the fallback analyzer.
func NewGeneric() *GenericAnalyzer {
	return &GenericAnalyzer{}
}

func (g *GenericAnalyzer) Language() string { return "generic" }

var (
	// def foo / function foo / func foo / fn foo / sub foo
	genericFuncRe = regexp.MustCompile(`^\s*(?:export\s+|pub\s+|public\s+|private\s+|static\s+|async\s+)*(?:def|function|func|fn|sub)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	// class Foo / struct Foo / interface Foo / trait Foo / module Foo
	genericTypeRe = regexp.MustCompile(`^\s*(?:export\s+|pub\s+|public\s+|abstract\s+)*(class|struct|interface|trait|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	// name(  -- potential call site
	genericCallRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	// import / require / use / include
	genericImportRe = regexp.MustCompile(`^\s*(?:import|from|require|use|include)\s+['"]?([A-Za-z0-9_./:@-]+)`)

	genericKeywords = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "return": true,
		"def": true, "function": true, "func": true, "fn": true, "sub": true,
		"catch": true, "elif": true, "else": true, "with": true, "match": true,
	}
)

// ExtractSymbols finds definition-looking lines. The end of a symbol span is
// approximated by the start of the next definition at the same or lower
// indentation, or end of file.
func (g *GenericAnalyzer) ExtractSymbols(src []byte) ([]types.Symbol, error) {
	type def struct {
		sym    types.Symbol
		indent int
	}
	var defs []def

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()

		if m := genericTypeRe.FindStringSubmatchIndex(text); m != nil {
			keyword := text[m[2]:m[3]]
			name := text[m[4]:m[5]]
			kind := types.KindClass
			switch keyword {
			case "struct", "enum":
				kind = types.KindStruct
			case "interface", "trait":
				kind = types.KindInterface
			}
			defs = append(defs, def{
				sym: types.Symbol{
					Name:      name,
					Qualified: name,
					Kind:      kind,
					Signature: strings.TrimSpace(text),
					Span:      lineSpan(line, m[4]+1, len(text)),
				},
				indent: indentOf(text),
			})
			continue
		}

		if m := genericFuncRe.FindStringSubmatchIndex(text); m != nil {
			name := text[m[2]:m[3]]
			defs = append(defs, def{
				sym: types.Symbol{
					Name:      name,
					Qualified: name,
					Kind:      types.KindFunction,
					Signature: strings.TrimSpace(text),
					Span:      lineSpan(line, m[2]+1, len(text)),
				},
				indent: indentOf(text),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.ParseError{Message: err.Error()}
	}

	// Close spans and attach indented functions to the nearest enclosing
	// type definition (Python/Ruby style methods).
	symbols := make([]types.Symbol, len(defs))
	for i := range defs {
		sym := defs[i].sym
		sym.Span.End.Line = line
		for j := i + 1; j < len(defs); j++ {
			if defs[j].indent <= defs[i].indent {
				sym.Span.End.Line = defs[j].sym.Span.Start.Line - 1
				break
			}
		}
		if sym.Kind == types.KindFunction {
			for j := i - 1; j >= 0; j-- {
				container := defs[j]
				if container.indent < defs[i].indent && isContainerKind(container.sym.Kind) {
					sym.Kind = types.KindMethod
					sym.Parent = container.sym.Name
					sym.Qualified = container.sym.Name + "." + sym.Name
					break
				}
			}
		}
		symbols[i] = sym
	}
	return symbols, nil
}

// ExtractReferences finds call-looking sites and import lines.
func (g *GenericAnalyzer) ExtractReferences(src []byte) ([]types.Reference, error) {
	var refs []types.Reference

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()

		if m := genericImportRe.FindStringSubmatch(text); m != nil {
			refs = append(refs, types.Reference{
				TargetName: m[1],
				Kind:       types.RefImport,
				Span:       lineSpan(line, 1, len(text)),
			})
			continue
		}

		// Definition lines would count their own name as a call.
		if genericFuncRe.MatchString(text) || genericTypeRe.MatchString(text) {
			continue
		}

		for _, m := range genericCallRe.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			if genericKeywords[name] {
				continue
			}
			refs = append(refs, types.Reference{
				TargetName: name,
				Kind:       types.RefCall,
				Span:       lineSpan(line, m[2]+1, m[3]+1),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.ParseError{Message: err.Error()}
	}
	return refs, nil
}

func isContainerKind(k types.SymbolKind) bool {
	return k == types.KindClass || k == types.KindStruct || k == types.KindInterface
}

func indentOf(text string) int {
	for i, r := range text {
		if r != ' ' && r != '\t' {
			return i
		}
	}
	return len(text)
}

func lineSpan(line, startCol, endCol int) types.Span {
	return types.Span{
		Start: types.Position{Line: line, Column: startCol},
		End:   types.Position{Line: line, Column: endCol},
	}
}
