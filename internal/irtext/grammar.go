package irtext

// File is the root production: exactly one module declaration.
type File struct {
	Module *ModuleDecl `@@`
}

type ModuleDecl struct {
	Name        string            `"module" @Ident`
	Annotations []*AnnotationDecl `@@*`
	Aliases     []*AliasDecl      `@@*`
	Globals     []*GlobalDecl     `@@*`
	VTables     []*VTableDecl     `@@*`
	Ctors       []*CtorDecl       `@@*`
	Funcs       []*FuncDecl       `@@*`
}

// AnnotationDecl is one row of the module's annotation table (spec §6):
// "annotation <target> <marker> [(arg, ...)]".
type AnnotationDecl struct {
	Target string   `"annotation" @Ident`
	Marker string   `@Ident`
	Args   []string `[ "(" @Ident { "," @Ident } ")" ]`
}

type AliasDecl struct {
	Name   string `"alias" @Ident "="`
	Target string `@Ident`
}

type GlobalDecl struct {
	Name     string    `"global" @GlobalRef ":"`
	Type     *TypeExpr `@@`
	Dup      bool      `[ @"dup" ]`
	Volatile bool      `[ @"volatile" ]`
	Section  string    `[ "section" @Ident ]`
	Init     *Operand  `[ "=" @@ ]`
}

type VTableDecl struct {
	Name  string    `"vtable" @GlobalRef "{"`
	Slots []*VSlot  `@@* "}"`
}

type VSlot struct {
	Index int    `@Integer ":"`
	Func  string `@Ident ";"`
}

type CtorDecl struct {
	Priority int    `"ctor" @Integer`
	Func     string `@Ident ";"`
}

type TypeExpr struct {
	ArrayCount int       `( "[" @Integer "x"`
	ArrayElem  *TypeExpr `  @@ "]"`
	Name       string    `| @Ident )`
}

// Operand is the single generic production every instruction's argument
// list, phi-incoming pair, gep-index list, and switch-case list is built
// from — a bracketed list of operands, a %value/block reference, an
// @global/function reference, a numeric literal, or a bare identifier
// (used where a type name or opcode-specific keyword is expected). One
// production instead of per-opcode operand grammars keeps the twenty-odd
// opcodes from needing twenty-odd near-identical struct shapes; the
// builder (build_body.go) interprets each Operand according to the opcode and
// slot position it was parsed in, the way the teacher's single recursive
// Expr/BinaryExpr production serves every expression context.
type Operand struct {
	List   []*Operand `(   "[" ( @@ ( "," @@ )* )? "]"`
	Value  string     `  | @ValueRef`
	Global string      `  | @GlobalRef`
	Float  *float64    `  | @Float`
	Int    *string     `  | @Integer`
	Bare   string      `  | @Ident )`
}

type FuncDecl struct {
	Declare bool        `(   @"declare"`
	Define  bool        `  | @"func" )`
	Name    string      `@Ident "("`
	Params  []*ParamDecl `[ @@ ( "," @@ )* ] ")"`
	Return  *TypeExpr    `"->" @@`
	Blocks  []*BlockDecl `( "{" @@* "}" | ";" )`
}

type ParamDecl struct {
	Name string    `@Ident ":"`
	Type *TypeExpr `@@`
}

type BlockDecl struct {
	Label  string       `@Ident ":"`
	Instrs []*InstrLine `@@*`
}

// InstrLine is "[result[, result2] =] opcode operand[, operand]* ;" — the
// generic instruction production every opcode is parsed through, paired
// with Operand for the same reason (see Operand's doc comment).
type InstrLine struct {
	Results  []string   `[ @ValueRef ( "," @ValueRef )* "=" ]`
	Op       string     `@Ident`
	Operands []*Operand `[ @@ ( "," @@ )* ] ";"`
}
