package analysis

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

func summarizeGo(s *Summary, content []byte) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, s.Path, content, parser.SkipObjectResolution)
	if err != nil {
		return err
	}

	for _, spec := range f.Imports {
		path, _ := strconv.Unquote(spec.Path.Value)
		imp := Import{Source: path}
		if spec.Name != nil {
			imp.Symbols = []string{spec.Name.Name}
		}
		s.Imports = append(s.Imports, imp)
	}

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				if recv := receiverName(d.Recv.List[0].Type); recv != "" {
					name = recv + "." + name
				}
			}
			s.Functions = append(s.Functions, name)
			if d.Name.IsExported() {
				s.Exports = append(s.Exports, name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch sp := spec.(type) {
				case *ast.TypeSpec:
					s.Classes = append(s.Classes, sp.Name.Name)
					if sp.Name.IsExported() {
						s.Exports = append(s.Exports, sp.Name.Name)
					}
				case *ast.ValueSpec:
					for _, n := range sp.Names {
						if n.Name == "_" {
							continue
						}
						s.Variables = append(s.Variables, n.Name)
						if n.IsExported() {
							s.Exports = append(s.Exports, n.Name)
						}
					}
				}
			}
		}
	}

	s.Complexity = goComplexity(f)
	return nil
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}

// goComplexity starts at one and adds one per branching construct.
func goComplexity(f *ast.File) int {
	n := 1
	ast.Inspect(f, func(node ast.Node) bool {
		switch x := node.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			n++
		case *ast.CaseClause:
			if x.List != nil {
				n++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				n++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				n++
			}
		}
		return true
	})
	return n
}
