package analyzer

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/types"
)

// GoAnalyzer extracts symbols and references from Go source using the
// standard library AST. Syntax errors are non-fatal: go/parser returns a
// partial AST and extraction continues with whatever is there.
type GoAnalyzer struct{}

// NewGo creates the Go analyzer.
func NewGo() *GoAnalyzer {
	return &GoAnalyzer{}
}

func (g *GoAnalyzer) Language() string { return "go" }

func (g *GoAnalyzer) parse(src []byte) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil && (file == nil || len(file.Decls) == 0) {
		return nil, nil, &types.ParseError{Message: fmt.Sprintf("syntax error: %v", err)}
	}
	// Partial AST with at least one declaration: extract what is there.
	return fset, file, nil
}

// ExtractSymbols walks the AST for function, method, type, const and var
// declarations. Methods nest under their receiver type and struct fields
// under their struct, expressed through Symbol.Parent.
func (g *GoAnalyzer) ExtractSymbols(src []byte) ([]types.Symbol, error) {
	fset, file, err := g.parse(src)
	if err != nil {
		return nil, err
	}

	ex := &goExtractor{fset: fset}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			ex.funcDecl(d)
		case *ast.GenDecl:
			ex.genDecl(d)
		}
	}
	return ex.symbols, nil
}

// ExtractReferences walks the AST for call expressions, imports and
// embedded types. Targets are recorded by name only; resolution happens in
// storage queries.
func (g *GoAnalyzer) ExtractReferences(src []byte) ([]types.Reference, error) {
	fset, file, err := g.parse(src)
	if err != nil {
		return nil, err
	}

	var refs []types.Reference
	span := func(n ast.Node) types.Span { return nodeSpan(fset, n) }

	for _, imp := range file.Imports {
		refs = append(refs, types.Reference{
			TargetName: strings.Trim(imp.Path.Value, `"`),
			Kind:       types.RefImport,
			Span:       span(imp),
		})
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			if name := callTargetName(node.Fun); name != "" {
				refs = append(refs, types.Reference{
					TargetName: name,
					Kind:       types.RefCall,
					Span:       span(node),
				})
			}
		case *ast.TypeSpec:
			refs = append(refs, embeddedRefs(fset, node)...)
		}
		return true
	})

	return refs, nil
}

// callTargetName reduces a call target expression to a bare name. Selector
// chains keep only the final segment: pkg.Foo and recv.Foo both become Foo,
// matching the by-name resolution model.
func callTargetName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.ParenExpr:
		return callTargetName(t.X)
	case *ast.IndexExpr: // generic instantiation
		return callTargetName(t.X)
	}
	return ""
}

// embeddedRefs records inheritance-kind references for embedded struct
// fields and embedded interfaces.
func embeddedRefs(fset *token.FileSet, spec *ast.TypeSpec) []types.Reference {
	var fields *ast.FieldList
	switch t := spec.Type.(type) {
	case *ast.StructType:
		fields = t.Fields
	case *ast.InterfaceType:
		fields = t.Methods
	default:
		return nil
	}
	if fields == nil {
		return nil
	}

	var refs []types.Reference
	for _, field := range fields.List {
		if len(field.Names) != 0 {
			continue
		}
		name := baseTypeName(field.Type)
		if name == "" {
			continue
		}
		refs = append(refs, types.Reference{
			TargetName: name,
			Kind:       types.RefInherit,
			Span:       nodeSpan(fset, field),
		})
	}
	return refs
}

func baseTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return baseTypeName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	}
	return ""
}

// goExtractor accumulates symbols during declaration walking.
type goExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

func (e *goExtractor) funcDecl(d *ast.FuncDecl) {
	sym := types.Symbol{
		Name: d.Name.Name,
		Kind: types.KindFunction,
		Doc:  docText(d.Doc),
		Span: nodeSpan(e.fset, d),
	}
	if d.Recv != nil && len(d.Recv.List) > 0 {
		recv := baseTypeName(d.Recv.List[0].Type)
		sym.Kind = types.KindMethod
		sym.Parent = recv
		sym.Qualified = recv + "." + sym.Name
	} else {
		sym.Qualified = sym.Name
	}
	sym.Signature = funcSignature(d)
	e.symbols = append(e.symbols, sym)
}

func (e *goExtractor) genDecl(d *ast.GenDecl) {
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			e.typeSpec(s, d.Doc)
		case *ast.ValueSpec:
			e.valueSpec(s, d.Doc, d.Tok)
		}
	}
}

func (e *goExtractor) typeSpec(spec *ast.TypeSpec, doc *ast.CommentGroup) {
	sym := types.Symbol{
		Name:      spec.Name.Name,
		Qualified: spec.Name.Name,
		Doc:       docText(doc),
		Span:      nodeSpan(e.fset, spec),
	}
	switch t := spec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct", spec.Name.Name)
		e.symbols = append(e.symbols, sym)
		e.structFields(spec.Name.Name, t)
		return
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface", spec.Name.Name)
	default:
		sym.Kind = types.KindType
		sym.Signature = fmt.Sprintf("type %s %s", spec.Name.Name, exprString(spec.Type))
	}
	e.symbols = append(e.symbols, sym)
}

func (e *goExtractor) structFields(structName string, st *ast.StructType) {
	if st.Fields == nil {
		return
	}
	for _, field := range st.Fields.List {
		for _, name := range field.Names {
			e.symbols = append(e.symbols, types.Symbol{
				Name:      name.Name,
				Qualified: structName + "." + name.Name,
				Kind:      types.KindField,
				Parent:    structName,
				Signature: fmt.Sprintf("%s %s", name.Name, exprString(field.Type)),
				Span:      nodeSpan(e.fset, field),
			})
		}
	}
}

func (e *goExtractor) valueSpec(spec *ast.ValueSpec, doc *ast.CommentGroup, tok token.Token) {
	kind := types.KindVar
	if tok == token.CONST {
		kind = types.KindConst
	}
	for _, name := range spec.Names {
		if name.Name == "_" {
			continue
		}
		sig := name.Name
		if spec.Type != nil {
			sig = fmt.Sprintf("%s %s", name.Name, exprString(spec.Type))
		}
		e.symbols = append(e.symbols, types.Symbol{
			Name:      name.Name,
			Qualified: name.Name,
			Kind:      kind,
			Doc:       docText(doc),
			Signature: sig,
			Span:      nodeSpan(e.fset, spec),
		})
	}
}

func funcSignature(d *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")
	if d.Recv != nil && len(d.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(d.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(d.Name.Name)
	sig.WriteString("(")
	sig.WriteString(fieldListString(d.Type.Params))
	sig.WriteString(")")
	if d.Type.Results != nil {
		results := fieldListString(d.Type.Results)
		if d.Type.Results.NumFields() > 1 {
			sig.WriteString(" (" + results + ")")
		} else if results != "" {
			sig.WriteString(" " + results)
		}
	}
	return sig.String()
}

func fieldListString(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fl.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func nodeSpan(fset *token.FileSet, n ast.Node) types.Span {
	start := fset.Position(n.Pos())
	end := fset.Position(n.End())
	return types.Span{
		Start: types.Position{Line: start.Line, Column: start.Column},
		End:   types.Position{Line: end.Line, Column: end.Column},
	}
}
