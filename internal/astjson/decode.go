// Package astjson bridges the external front end spec.md §1 places out of
// scope ("the front-end parser ... produces the AST consumed here") to
// this core: it decodes the JSON-serialized tree a separate parser process
// emits into internal/ast's node structs, so cmd/lumac has something
// concrete to feed internal/driver.Build without this repository growing
// its own lexer/parser. encoding/json is stdlib, which is the right and
// only reasonable choice for this one boundary -- it is pure wire-format
// decoding, not a core algorithm, so it is exempt from the "use a pack
// library" expectation the rest of the tree follows (DESIGN.md).
//
// The wire shape mirrors internal/ast's struct fields directly (a
// "kind"-tagged object per node, nested objects/arrays for children) --
// this package does no semantic validation of its own; a malformed or
// self-contradictory tree simply produces diagnostics once internal/lower
// runs over it, the same as it would for any other ill-typed program.
//
// internal/ast's node structs embed unexported base types to carry source
// ranges, so a decoded node never has its Range() populated here -- a
// front end that wants precise diagnostic positions attaches them at the
// boundary internal/ast itself owns. Every node below decodes cleanly
// without one; diag.Location{} is comparably low-value for a JSON bridge
// whose primary purpose is exercising the type system and lowering, not
// pinpointing editor columns.
package astjson

import (
	"encoding/json"
	"fmt"

	"lumac/internal/ast"
)

// node is the generic wire shape every AST/type/pattern node decodes
// through: a "kind" discriminator plus whatever fields that kind needs,
// left as raw messages until the kind is known.
type node map[string]json.RawMessage

func (n node) str(key string) string {
	var s string
	if raw, ok := n[key]; ok {
		json.Unmarshal(raw, &s)
	}
	return s
}

func (n node) boolField(key string) bool {
	var b bool
	if raw, ok := n[key]; ok {
		json.Unmarshal(raw, &b)
	}
	return b
}

func (n node) intField(key string, def int) int {
	if raw, ok := n[key]; ok {
		var i int
		if err := json.Unmarshal(raw, &i); err == nil {
			return i
		}
	}
	return def
}

func (n node) rawArray(key string) []json.RawMessage {
	raw, ok := n[key]
	if !ok {
		return nil
	}
	var out []json.RawMessage
	json.Unmarshal(raw, &out)
	return out
}

func (n node) strArray(key string) []string {
	raw, ok := n[key]
	if !ok {
		return nil
	}
	var out []string
	json.Unmarshal(raw, &out)
	return out
}

// DecodeFile decodes one JSON-encoded source file into an *ast.SourceFile.
func DecodeFile(data []byte) (*ast.SourceFile, error) {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("astjson: %w", err)
	}
	stmts, err := decodeStmtList(n.rawArray("stmts"))
	if err != nil {
		return nil, err
	}
	return &ast.SourceFile{Path: n.str("path"), Stmts: stmts}, nil
}

// DecodeProgram decodes a JSON array of source files (the shape an
// external batch-parsing front end would emit for a whole compiled unit).
func DecodeProgram(data []byte) ([]*ast.SourceFile, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("astjson: %w", err)
	}
	files := make([]*ast.SourceFile, 0, len(raws))
	for _, raw := range raws {
		f, err := DecodeFile(raw)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func decodeStmtList(raws []json.RawMessage) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(raws))
	for _, raw := range raws {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeExprList(raws []json.RawMessage) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeTypeList(raws []json.RawMessage) ([]ast.TypeNode, error) {
	out := make([]ast.TypeNode, 0, len(raws))
	for _, raw := range raws {
		t, err := decodeType(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeOptExpr(n node, key string) (ast.Expr, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	return decodeExpr(raw)
}

func decodeOptType(n node, key string) (ast.TypeNode, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	return decodeType(raw)
}

func decodeOptStmt(n node, key string) (ast.Stmt, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	return decodeStmt(raw)
}

func decodeOptBlock(n node, key string) (*ast.Block, error) {
	s, err := decodeOptStmt(n, key)
	if err != nil || s == nil {
		return nil, err
	}
	b, ok := s.(*ast.Block)
	if !ok {
		return nil, fmt.Errorf("astjson: %s: expected block, got %T", key, s)
	}
	return b, nil
}

// ---- Expressions ----

func decodeExpr(raw json.RawMessage) (ast.Expr, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("astjson: expr: %w", err)
	}
	kind := n.str("kind")

	switch kind {
	case "literal":
		var v any
		if rv, ok := n["value"]; ok {
			json.Unmarshal(rv, &v)
		}
		return &ast.Literal{Kind: literalKind(n.str("litKind")), Value: v}, nil
	case "identifier":
		return &ast.Identifier{Name: n.str("name")}, nil
	case "this":
		return &ast.ThisExpr{}, nil
	case "binary":
		l, err := decodeExpr(n["left"])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(n["right"])
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: n.str("op"), Left: l, Right: r}, nil
	case "logical":
		l, err := decodeExpr(n["left"])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(n["right"])
		if err != nil {
			return nil, err
		}
		return &ast.LogicalExpr{Op: n.str("op"), Left: l, Right: r}, nil
	case "unary":
		operand, err := decodeExpr(n["operand"])
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: n.str("op"), Operand: operand}, nil
	case "prefix":
		operand, err := decodeExpr(n["operand"])
		if err != nil {
			return nil, err
		}
		return &ast.PrefixExpr{Op: n.str("op"), Operand: operand}, nil
	case "postfix":
		operand, err := decodeExpr(n["operand"])
		if err != nil {
			return nil, err
		}
		return &ast.PostfixExpr{Op: n.str("op"), Operand: operand}, nil
	case "assign":
		target, err := decodeExpr(n["target"])
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(n["value"])
		if err != nil {
			return nil, err
		}
		return &ast.AssignExpr{Op: n.str("op"), Target: target, Value: val}, nil
	case "conditional":
		cond, err := decodeExpr(n["cond"])
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(n["then"])
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(n["else"])
		if err != nil {
			return nil, err
		}
		return &ast.ConditionalExpr{Cond: cond, Then: then, Else: els}, nil
	case "call":
		callee, err := decodeExpr(n["callee"])
		if err != nil {
			return nil, err
		}
		args, err := decodeExprList(n.rawArray("args"))
		if err != nil {
			return nil, err
		}
		typeArgs, err := decodeTypeList(n.rawArray("typeArgs"))
		if err != nil {
			return nil, err
		}
		return &ast.CallExpr{Callee: callee, Args: args, TypeArgs: typeArgs, Optional: n.boolField("optional")}, nil
	case "new":
		callee, err := decodeExpr(n["callee"])
		if err != nil {
			return nil, err
		}
		args, err := decodeExprList(n.rawArray("args"))
		if err != nil {
			return nil, err
		}
		typeArgs, err := decodeTypeList(n.rawArray("typeArgs"))
		if err != nil {
			return nil, err
		}
		return &ast.NewExpr{Callee: callee, Args: args, TypeArgs: typeArgs}, nil
	case "propertyAccess":
		obj, err := decodeExpr(n["object"])
		if err != nil {
			return nil, err
		}
		return &ast.PropertyAccessExpr{Object: obj, Property: n.str("property"), Optional: n.boolField("optional")}, nil
	case "elementAccess":
		obj, err := decodeExpr(n["object"])
		if err != nil {
			return nil, err
		}
		idx, err := decodeExpr(n["index"])
		if err != nil {
			return nil, err
		}
		return &ast.ElementAccessExpr{Object: obj, Index: idx, Optional: n.boolField("optional")}, nil
	case "as":
		e, err := decodeExpr(n["expr"])
		if err != nil {
			return nil, err
		}
		t, err := decodeType(n["type"])
		if err != nil {
			return nil, err
		}
		return &ast.AsExpr{Expr: e, Type: t}, nil
	case "typeAssertion":
		e, err := decodeExpr(n["expr"])
		if err != nil {
			return nil, err
		}
		t, err := decodeType(n["type"])
		if err != nil {
			return nil, err
		}
		return &ast.TypeAssertionExpr{Expr: e, Type: t}, nil
	case "await":
		operand, err := decodeExpr(n["operand"])
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpr{Operand: operand}, nil
	case "yield":
		operand, err := decodeOptExpr(n, "operand")
		if err != nil {
			return nil, err
		}
		return &ast.YieldExpr{Operand: operand, Delegate: n.boolField("delegate")}, nil
	case "spread":
		operand, err := decodeExpr(n["operand"])
		if err != nil {
			return nil, err
		}
		return &ast.SpreadExpr{Operand: operand}, nil
	case "paren":
		inner, err := decodeExpr(n["inner"])
		if err != nil {
			return nil, err
		}
		return &ast.ParenExpr{Inner: inner}, nil
	case "arrayLiteral":
		elems, err := decodeExprList(n.rawArray("elements"))
		if err != nil {
			return nil, err
		}
		var spreads []bool
		if raw, ok := n["spreads"]; ok {
			json.Unmarshal(raw, &spreads)
		}
		return &ast.ArrayLiteral{Elements: elems, Spreads: spreads}, nil
	case "objectLiteral":
		keys := n.strArray("keys")
		values, err := decodeExprList(n.rawArray("values"))
		if err != nil {
			return nil, err
		}
		methodRaws := n.rawArray("methods")
		methods := make([]*ast.FunctionExpr, 0, len(methodRaws))
		for _, raw := range methodRaws {
			fn, err := decodeFunctionExpr(raw)
			if err != nil {
				return nil, err
			}
			methods = append(methods, fn)
		}
		return &ast.ObjectLiteral{Keys: keys, Values: values, Methods: methods}, nil
	case "function":
		return decodeFunctionExpr(raw)
	case "template":
		parts, err := decodeExprList(n.rawArray("parts"))
		if err != nil {
			return nil, err
		}
		return &ast.TemplateLiteral{Parts: parts}, nil
	case "taggedTemplate":
		tag, err := decodeExpr(n["tag"])
		if err != nil {
			return nil, err
		}
		tmplExpr, err := decodeExpr(n["template"])
		if err != nil {
			return nil, err
		}
		tmpl, _ := tmplExpr.(*ast.TemplateLiteral)
		return &ast.TaggedTemplateExpr{Tag: tag, Template: tmpl}, nil
	default:
		return nil, fmt.Errorf("astjson: unknown expression kind %q", kind)
	}
}

func decodeFunctionExpr(raw json.RawMessage) (*ast.FunctionExpr, error) {
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("astjson: function: %w", err)
	}
	params, err := decodeParamList(n.rawArray("params"))
	if err != nil {
		return nil, err
	}
	body, err := decodeStmtList(n.rawArray("body"))
	if err != nil {
		return nil, err
	}
	exprBody, err := decodeOptExpr(n, "exprBody")
	if err != nil {
		return nil, err
	}
	retType, err := decodeOptType(n, "returnType")
	if err != nil {
		return nil, err
	}
	typeParams, err := decodeTypeParamList(n.rawArray("typeParams"))
	if err != nil {
		return nil, err
	}
	return &ast.FunctionExpr{
		Name: n.str("name"), Params: params, Body: body, ExprBody: exprBody,
		IsArrow: n.boolField("isArrow"), IsGenerator: n.boolField("isGenerator"),
		IsAsync: n.boolField("isAsync"), ReturnType: retType, TypeParams: typeParams,
	}, nil
}

func decodeParamList(raws []json.RawMessage) ([]*ast.Param, error) {
	out := make([]*ast.Param, 0, len(raws))
	for _, raw := range raws {
		var n node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("astjson: param: %w", err)
		}
		typ, err := decodeOptType(n, "type")
		if err != nil {
			return nil, err
		}
		def, err := decodeOptExpr(n, "default")
		if err != nil {
			return nil, err
		}
		pat, err := decodeOptPattern(n, "pattern")
		if err != nil {
			return nil, err
		}
		out = append(out, &ast.Param{
			Name: n.str("name"), Type: typ, Optional: n.boolField("optional"),
			Variadic: n.boolField("variadic"), Promoted: n.boolField("promoted"),
			Default: def, Pattern: pat,
		})
	}
	return out, nil
}

func decodeTypeParamList(raws []json.RawMessage) ([]*ast.TypeParam, error) {
	out := make([]*ast.TypeParam, 0, len(raws))
	for _, raw := range raws {
		var n node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("astjson: typeParam: %w", err)
		}
		constraint, err := decodeOptType(n, "constraint")
		if err != nil {
			return nil, err
		}
		def, err := decodeOptType(n, "default")
		if err != nil {
			return nil, err
		}
		out = append(out, &ast.TypeParam{Name: n.str("name"), Constraint: constraint, Default: def})
	}
	return out, nil
}

func decodeOptPattern(n node, key string) (ast.Pattern, error) {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	return decodePattern(raw)
}

func decodePattern(raw json.RawMessage) (ast.Pattern, error) {
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("astjson: pattern: %w", err)
	}
	switch n.str("kind") {
	case "identifierPattern":
		return &ast.IdentifierPattern{Name: n.str("name")}, nil
	case "arrayPattern":
		elemRaws := n.rawArray("elements")
		elems := make([]ast.Pattern, 0, len(elemRaws))
		for _, er := range elemRaws {
			p, err := decodePattern(er)
			if err != nil {
				return nil, err
			}
			elems = append(elems, p)
		}
		return &ast.ArrayPattern{Elements: elems, Rest: n.str("rest")}, nil
	case "objectPattern":
		elemRaws := n.rawArray("elements")
		elems := make([]ast.Pattern, 0, len(elemRaws))
		for _, er := range elemRaws {
			p, err := decodePattern(er)
			if err != nil {
				return nil, err
			}
			elems = append(elems, p)
		}
		return &ast.ObjectPattern{Keys: n.strArray("keys"), Elements: elems, Rest: n.str("rest")}, nil
	default:
		return nil, fmt.Errorf("astjson: unknown pattern kind %q", n.str("kind"))
	}
}

func literalKind(s string) ast.LiteralKind {
	switch s {
	case "string":
		return ast.LitString
	case "bigint":
		return ast.LitBigInt
	case "bool":
		return ast.LitBool
	case "null":
		return ast.LitNull
	default:
		return ast.LitNumber
	}
}

// ---- Statements ----

func decodeStmt(raw json.RawMessage) (ast.Stmt, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("astjson: stmt: %w", err)
	}
	kind := n.str("kind")

	switch kind {
	case "block":
		stmts, err := decodeStmtList(n.rawArray("stmts"))
		if err != nil {
			return nil, err
		}
		return &ast.Block{Stmts: stmts}, nil
	case "exprStmt":
		e, err := decodeExpr(n["expr"])
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Expr: e}, nil
	case "variable":
		declRaws := n.rawArray("decls")
		decls := make([]*ast.VarDecl, 0, len(declRaws))
		for _, dr := range declRaws {
			var dn node
			if err := json.Unmarshal(dr, &dn); err != nil {
				return nil, fmt.Errorf("astjson: varDecl: %w", err)
			}
			typ, err := decodeOptType(dn, "type")
			if err != nil {
				return nil, err
			}
			init, err := decodeOptExpr(dn, "init")
			if err != nil {
				return nil, err
			}
			pat, err := decodeOptPattern(dn, "pattern")
			if err != nil {
				return nil, err
			}
			decls = append(decls, &ast.VarDecl{Name: dn.str("name"), Pattern: pat, Type: typ, Init: init})
		}
		return &ast.VariableStmt{Kind: varKind(n.str("varKind")), Decls: decls}, nil
	case "functionDecl":
		fn, err := decodeFunctionExpr(n["fn"])
		if err != nil {
			return nil, err
		}
		return &ast.FunctionDecl{Fn: fn}, nil
	case "return":
		v, err := decodeOptExpr(n, "value")
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{Value: v}, nil
	case "if":
		cond, err := decodeExpr(n["cond"])
		if err != nil {
			return nil, err
		}
		then, err := decodeStmt(n["then"])
		if err != nil {
			return nil, err
		}
		els, err := decodeOptStmt(n, "else")
		if err != nil {
			return nil, err
		}
		return &ast.IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := decodeExpr(n["cond"])
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		return &ast.WhileStmt{Cond: cond, Body: body, Label: n.str("label")}, nil
	case "doWhile":
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(n["cond"])
		if err != nil {
			return nil, err
		}
		return &ast.DoWhileStmt{Body: body, Cond: cond, Label: n.str("label")}, nil
	case "for":
		init, err := decodeOptStmt(n, "init")
		if err != nil {
			return nil, err
		}
		cond, err := decodeOptExpr(n, "cond")
		if err != nil {
			return nil, err
		}
		update, err := decodeOptExpr(n, "update")
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		var initNode ast.Node
		if init != nil {
			initNode = init
		}
		return &ast.ForStmt{Init: initNode, Cond: cond, Update: update, Body: body, Label: n.str("label")}, nil
	case "forIn":
		pat, err := decodeOptPattern(n, "pattern")
		if err != nil {
			return nil, err
		}
		obj, err := decodeExpr(n["object"])
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		return &ast.ForInStmt{
			DeclKind: varKind(n.str("declKind")), VarName: n.str("varName"), Pattern: pat,
			Object: obj, Body: body, Label: n.str("label"),
		}, nil
	case "forOf":
		pat, err := decodeOptPattern(n, "pattern")
		if err != nil {
			return nil, err
		}
		iterable, err := decodeExpr(n["iterable"])
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		return &ast.ForOfStmt{
			DeclKind: varKind(n.str("declKind")), VarName: n.str("varName"), Pattern: pat,
			IsAwait: n.boolField("isAwait"), Iterable: iterable, Body: body, Label: n.str("label"),
		}, nil
	case "break":
		return &ast.BreakStmt{Label: n.str("label")}, nil
	case "continue":
		return &ast.ContinueStmt{Label: n.str("label")}, nil
	case "labeled":
		body, err := decodeStmt(n["body"])
		if err != nil {
			return nil, err
		}
		return &ast.LabeledStmt{Label: n.str("label"), Body: body}, nil
	case "switch":
		disc, err := decodeExpr(n["disc"])
		if err != nil {
			return nil, err
		}
		caseRaws := n.rawArray("cases")
		cases := make([]*ast.SwitchCase, 0, len(caseRaws))
		for _, cr := range caseRaws {
			var cn node
			if err := json.Unmarshal(cr, &cn); err != nil {
				return nil, fmt.Errorf("astjson: switchCase: %w", err)
			}
			test, err := decodeOptExpr(cn, "test")
			if err != nil {
				return nil, err
			}
			body, err := decodeStmtList(cn.rawArray("body"))
			if err != nil {
				return nil, err
			}
			var testPtr *ast.Expr
			if test != nil {
				testPtr = &test
			}
			cases = append(cases, &ast.SwitchCase{Test: testPtr, Body: body})
		}
		return &ast.SwitchStmt{Disc: disc, Cases: cases}, nil
	case "try":
		block, err := decodeOptBlock(n, "block")
		if err != nil {
			return nil, err
		}
		catchPat, err := decodeOptPattern(n, "catchPattern")
		if err != nil {
			return nil, err
		}
		catchBlock, err := decodeOptBlock(n, "catchBlock")
		if err != nil {
			return nil, err
		}
		finally, err := decodeOptBlock(n, "finally")
		if err != nil {
			return nil, err
		}
		return &ast.TryStmt{
			Block: block, CatchParam: n.str("catchParam"), CatchPattern: catchPat,
			CatchBlock: catchBlock, Finally: finally,
		}, nil
	case "throw":
		v, err := decodeOptExpr(n, "value")
		if err != nil {
			return nil, err
		}
		return &ast.ThrowStmt{Value: v}, nil
	case "importEquals":
		return &ast.ImportEqualsDecl{Alias: n.str("alias"), Target: n.str("target")}, nil
	case "import":
		return &ast.ImportDecl{Path: n.str("path"), Alias: n.str("alias"), Names: n.strArray("names")}, nil
	case "module":
		body, err := decodeStmtList(n.rawArray("body"))
		if err != nil {
			return nil, err
		}
		return &ast.ModuleDecl{Name: n.str("name"), Body: body}, nil
	case "class":
		return decodeClassDecl(n)
	case "interface":
		return decodeInterfaceDecl(n)
	case "enum":
		return decodeEnumDecl(n)
	case "typeAlias":
		typ, err := decodeType(n["type"])
		if err != nil {
			return nil, err
		}
		typeParams, err := decodeTypeParamList(n.rawArray("typeParams"))
		if err != nil {
			return nil, err
		}
		return &ast.TypeAliasDecl{Name: n.str("name"), TypeParams: typeParams, Type: typ}, nil
	default:
		return nil, fmt.Errorf("astjson: unknown statement kind %q", kind)
	}
}

func varKind(s string) ast.VarKind {
	switch s {
	case "const":
		return ast.VarConst
	case "var":
		return ast.VarVar
	default:
		return ast.VarLet
	}
}

func decodeClassDecl(n node) (*ast.ClassDecl, error) {
	extends, err := decodeOptType(n, "extends")
	if err != nil {
		return nil, err
	}
	implements, err := decodeTypeList(n.rawArray("implements"))
	if err != nil {
		return nil, err
	}
	typeParams, err := decodeTypeParamList(n.rawArray("typeParams"))
	if err != nil {
		return nil, err
	}

	fieldRaws := n.rawArray("fields")
	fields := make([]*ast.FieldDecl, 0, len(fieldRaws))
	for _, fr := range fieldRaws {
		var fn node
		if err := json.Unmarshal(fr, &fn); err != nil {
			return nil, fmt.Errorf("astjson: field: %w", err)
		}
		typ, err := decodeOptType(fn, "type")
		if err != nil {
			return nil, err
		}
		init, err := decodeOptExpr(fn, "initializer")
		if err != nil {
			return nil, err
		}
		fields = append(fields, &ast.FieldDecl{
			Name: fn.str("name"), Type: typ, Initializer: init,
			Static: fn.boolField("static"), Optional: fn.boolField("optional"), Readonly: fn.boolField("readonly"),
		})
	}

	methodRaws := n.rawArray("methods")
	methods := make([]*ast.MethodDecl, 0, len(methodRaws))
	for _, mr := range methodRaws {
		var mn node
		if err := json.Unmarshal(mr, &mn); err != nil {
			return nil, fmt.Errorf("astjson: method: %w", err)
		}
		fn, err := decodeFunctionExpr(mn["fn"])
		if err != nil {
			return nil, err
		}
		methods = append(methods, &ast.MethodDecl{
			Name: mn.str("name"), Fn: fn, Static: mn.boolField("static"),
			Abstract: mn.boolField("abstract"), Virtual: mn.boolField("virtual"), Kind: mn.str("methodKind"),
		})
	}

	return &ast.ClassDecl{
		Name: n.str("name"), TypeParams: typeParams, Extends: extends, Implements: implements,
		Fields: fields, Methods: methods, IsAbstract: n.boolField("isAbstract"),
		IsDeclarationOnly: n.boolField("isDeclarationOnly"),
	}, nil
}

func decodeInterfaceDecl(n node) (*ast.InterfaceDecl, error) {
	extends, err := decodeTypeList(n.rawArray("extends"))
	if err != nil {
		return nil, err
	}
	typeParams, err := decodeTypeParamList(n.rawArray("typeParams"))
	if err != nil {
		return nil, err
	}
	memberRaws := n.rawArray("members")
	members := make([]*ast.InterfaceMember, 0, len(memberRaws))
	for _, mr := range memberRaws {
		var mn node
		if err := json.Unmarshal(mr, &mn); err != nil {
			return nil, fmt.Errorf("astjson: interfaceMember: %w", err)
		}
		typ, err := decodeOptType(mn, "type")
		if err != nil {
			return nil, err
		}
		var fn *ast.FunctionExpr
		if raw, ok := mn["fn"]; ok && string(raw) != "null" {
			fn, err = decodeFunctionExpr(raw)
			if err != nil {
				return nil, err
			}
		}
		members = append(members, &ast.InterfaceMember{
			Name: mn.str("name"), Type: typ, Fn: fn, Conditional: mn.boolField("conditional"),
		})
	}
	return &ast.InterfaceDecl{Name: n.str("name"), TypeParams: typeParams, Extends: extends, Members: members}, nil
}

func decodeEnumDecl(n node) (*ast.EnumDecl, error) {
	memberRaws := n.rawArray("members")
	members := make([]*ast.EnumMember, 0, len(memberRaws))
	for _, mr := range memberRaws {
		var mn node
		if err := json.Unmarshal(mr, &mn); err != nil {
			return nil, fmt.Errorf("astjson: enumMember: %w", err)
		}
		val, err := decodeOptExpr(mn, "value")
		if err != nil {
			return nil, err
		}
		members = append(members, &ast.EnumMember{Name: mn.str("name"), Value: val})
	}
	return &ast.EnumDecl{Name: n.str("name"), Members: members, IsConst: n.boolField("isConst")}, nil
}

// ---- Type nodes ----

func decodeType(raw json.RawMessage) (ast.TypeNode, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("astjson: type: %w", err)
	}
	switch n.str("kind") {
	case "named":
		typeArgs, err := decodeTypeList(n.rawArray("typeArgs"))
		if err != nil {
			return nil, err
		}
		return &ast.NamedTypeNode{Name: n.str("name"), TypeArgs: typeArgs}, nil
	case "array":
		elem, err := decodeType(n["elem"])
		if err != nil {
			return nil, err
		}
		return &ast.ArrayTypeNode{Elem: elem, Length: n.intField("length", -1)}, nil
	case "tuple":
		elems, err := decodeTypeList(n.rawArray("elems"))
		if err != nil {
			return nil, err
		}
		return &ast.TupleTypeNode{Elems: elems}, nil
	case "union":
		members, err := decodeTypeList(n.rawArray("members"))
		if err != nil {
			return nil, err
		}
		return &ast.UnionTypeNode{Members: members}, nil
	case "intersection":
		members, err := decodeTypeList(n.rawArray("members"))
		if err != nil {
			return nil, err
		}
		return &ast.IntersectionTypeNode{Members: members}, nil
	case "optional":
		elem, err := decodeType(n["elem"])
		if err != nil {
			return nil, err
		}
		return &ast.OptionalTypeNode{Elem: elem}, nil
	case "function":
		params, err := decodeParamList(n.rawArray("params"))
		if err != nil {
			return nil, err
		}
		ret, err := decodeType(n["return"])
		if err != nil {
			return nil, err
		}
		typeParams, err := decodeTypeParamList(n.rawArray("typeParams"))
		if err != nil {
			return nil, err
		}
		return &ast.FunctionTypeNode{Params: params, Return: ret, TypeParams: typeParams}, nil
	case "literal":
		var v any
		if rv, ok := n["value"]; ok {
			json.Unmarshal(rv, &v)
		}
		return &ast.LiteralTypeNode{Value: v}, nil
	case "keyword":
		return &ast.KeywordTypeNode{Keyword: n.str("keyword")}, nil
	case "this":
		return &ast.ThisTypeNode{}, nil
	case "infer":
		return &ast.InferTypeNode{Name: n.str("name")}, nil
	default:
		return nil, fmt.Errorf("astjson: unknown type kind %q", n.str("kind"))
	}
}
