package outline

import (
	"context"
	"reflect"
	"testing"
)

// collect parses src with the grammar selected by path and returns the
// collected forest. Collection errors fail the test.
func collect(t *testing.T, path, src string) []*SymbolNode {
	t.Helper()

	parser := NewParser()
	tree, err := parser.ParseFull(context.Background(), []byte(src), path)
	if err != nil {
		t.Fatalf("ParseFull(%s) failed: %v", path, err)
	}
	t.Cleanup(func() { tree.Close() })

	nodes, errs := NewCollector().Collect(tree.RootNode(), []byte(src))
	for _, e := range errs {
		t.Errorf("collection error: %s", e)
	}
	return nodes
}

func collectCpp(t *testing.T, src string) []*SymbolNode {
	t.Helper()
	return collect(t, "test.cpp", src)
}

// findKind returns the first node of the given kind, depth-first.
func findKind(forest []*SymbolNode, kind SymbolKind) *SymbolNode {
	for _, n := range forest {
		if n.Kind == kind {
			return n
		}
		if found := findKind(n.Children, kind); found != nil {
			return found
		}
	}
	return nil
}

// countKind counts nodes of the given kind, depth-first.
func countKind(forest []*SymbolNode, kind SymbolKind) int {
	count := 0
	for _, n := range forest {
		if n.Kind == kind {
			count++
		}
		count += countKind(n.Children, kind)
	}
	return count
}

// names flattens top-level display names for order assertions.
func names(forest []*SymbolNode) []string {
	out := make([]string, len(forest))
	for i, n := range forest {
		out[i] = n.Name
	}
	return out
}

func TestCollect_Namespace(t *testing.T) {
	src := `namespace app {
int helper();
}
`
	forest := collectCpp(t, src)

	if len(forest) != 1 {
		t.Fatalf("expected 1 root, got %d: %v", len(forest), names(forest))
	}
	ns := forest[0]
	if ns.Kind != KindNamespace || ns.Name != "app" {
		t.Errorf("root = %s %q, want namespace app", ns.Kind, ns.Name)
	}
	if len(ns.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(ns.Children))
	}
	fn := ns.Children[0]
	if fn.Kind != KindFunction {
		t.Errorf("child kind = %s, want function", fn.Kind)
	}
	if !fn.Declaration {
		t.Error("prototype should be marked as a declaration")
	}
	if fn.Name != "int app::helper()" {
		t.Errorf("function name = %q, want %q", fn.Name, "int app::helper()")
	}
}

func TestCollect_AnonymousNamespace(t *testing.T) {
	src := `namespace {
void hidden() {}
}
`
	forest := collectCpp(t, src)
	if len(forest) != 1 || forest[0].Name != anonymousName {
		t.Fatalf("expected one %q namespace, got %v", anonymousName, names(forest))
	}
}

func TestCollect_ClassAccessDefaults(t *testing.T) {
	src := `class Widget {
  int hidden_;
public:
  int shown_;
protected:
  int guarded_;
};
`
	forest := collectCpp(t, src)

	cls := findKind(forest, KindClass)
	if cls == nil {
		t.Fatal("no class collected")
	}
	if len(cls.Children) != 3 {
		t.Fatalf("expected 3 fields, got %d: %v", len(cls.Children), names(cls.Children))
	}

	want := []AccessLevel{AccessPrivate, AccessPublic, AccessProtected}
	for i, access := range want {
		if cls.Children[i].Access != access {
			t.Errorf("field %d access = %s, want %s", i, cls.Children[i].Access, access)
		}
	}
}

func TestCollect_StructDefaultsPublic(t *testing.T) {
	src := `struct Point {
  int x;
  int y;
};
`
	forest := collectCpp(t, src)

	st := findKind(forest, KindStruct)
	if st == nil {
		t.Fatal("no struct collected")
	}
	for _, f := range st.Children {
		if f.Access != AccessPublic {
			t.Errorf("struct member %q access = %s, want public", f.Name, f.Access)
		}
	}
}

func TestCollect_ForwardDeclarationSkipped(t *testing.T) {
	src := `class Widget;
struct Point;
`
	forest := collectCpp(t, src)
	if countKind(forest, KindClass)+countKind(forest, KindStruct) != 0 {
		t.Errorf("forward declarations should not appear: %v", names(forest))
	}
}

func TestCollect_Enum(t *testing.T) {
	src := `enum Color {
  RED,
  GREEN = 2,
  BLUE,
};
`
	forest := collectCpp(t, src)

	en := findKind(forest, KindEnum)
	if en == nil {
		t.Fatal("no enum collected")
	}
	if en.Name != "Color" {
		t.Errorf("enum name = %q, want Color", en.Name)
	}

	got := names(en.Children)
	want := []string{"RED", "GREEN", "BLUE"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("enumerators = %v, want %v", got, want)
	}
	for _, m := range en.Children {
		if m.Kind != KindEnumMember {
			t.Errorf("member %q kind = %s, want enum_member", m.Name, m.Kind)
		}
	}
}

func TestCollect_EnumClass(t *testing.T) {
	src := `enum class Mode { Fast, Slow };`
	forest := collectCpp(t, src)

	en := findKind(forest, KindEnum)
	if en == nil {
		t.Fatal("no enum collected")
	}
	if en.Name != "Mode" {
		t.Errorf("enum name = %q, want Mode", en.Name)
	}
	if len(en.Children) != 2 {
		t.Errorf("expected 2 enumerators, got %v", names(en.Children))
	}
}

func TestCollect_MacroInvocationNotFunction(t *testing.T) {
	// A macro invocation followed by a block is parsed by tree-sitter as a
	// function_definition with no return type. It must not become a symbol,
	// while a real definition on the same page must.
	src := `TEST_CASE(BasicBehavior) {
  int x = 0;
}

void Foo() {
}
`
	forest := collectCpp(t, src)

	if n := countKind(forest, KindFunction); n != 1 {
		t.Fatalf("expected exactly 1 function, got %d: %v", n, names(forest))
	}
	fn := findKind(forest, KindFunction)
	if fn.Name != "void Foo()" {
		t.Errorf("function name = %q, want %q", fn.Name, "void Foo()")
	}
}

func TestCollect_OutOfClassConstructor(t *testing.T) {
	// No return type, but the qualifier repeats the name: a constructor
	// defined outside its class.
	src := `CodeGen_Text::CodeGen_Text(std::ostream &s) : out(s) {
}
`
	forest := collectCpp(t, src)

	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("out-of-class constructor not collected")
	}
	if fn.Name != "CodeGen_Text::CodeGen_Text(std::ostream&)" {
		t.Errorf("name = %q, want %q", fn.Name, "CodeGen_Text::CodeGen_Text(std::ostream&)")
	}
}

func TestCollect_InClassSpecialMembers(t *testing.T) {
	src := `class Buffer {
public:
  Buffer(int n);
  ~Buffer();
  Buffer& operator=(const Buffer& other);
  operator bool() const;
};
`
	forest := collectCpp(t, src)

	cls := findKind(forest, KindClass)
	if cls == nil {
		t.Fatal("no class collected")
	}
	if len(cls.Children) != 4 {
		t.Fatalf("expected 4 members, got %d: %v", len(cls.Children), names(cls.Children))
	}
	for _, m := range cls.Children {
		if m.Kind != KindFunction {
			t.Errorf("member %q kind = %s, want function", m.Name, m.Kind)
		}
		if !m.Declaration {
			t.Errorf("member %q should be a declaration", m.Name)
		}
	}
}

func TestCollect_Destructor_Definition(t *testing.T) {
	src := `Buffer::~Buffer() {
}
`
	forest := collectCpp(t, src)
	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("out-of-class destructor not collected")
	}
	if fn.Name != "Buffer::~Buffer()" {
		t.Errorf("name = %q, want %q", fn.Name, "Buffer::~Buffer()")
	}
}

func TestCollect_LocalTypeInsideFunctionBody(t *testing.T) {
	src := `void process() {
  struct Local {
    int x;
  };
  int y = 0;
  if (y) {
    enum Inner { A, B };
  }
}
`
	forest := collectCpp(t, src)

	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("function not collected")
	}

	if st := findKind(fn.Children, KindStruct); st == nil || st.Name != "Local" {
		t.Errorf("local struct not collected under function: %v", names(fn.Children))
	}
	if en := findKind(fn.Children, KindEnum); en == nil || en.Name != "Inner" {
		t.Errorf("enum inside nested statement not collected: %v", names(fn.Children))
	}

	// Local variables and plain statements are not outline entries.
	if countKind(fn.Children, KindVariable) != 0 {
		t.Errorf("local variables should not appear: %v", names(fn.Children))
	}
}

func TestCollect_NoNestedFunctions(t *testing.T) {
	// Statement sequences inside a body can be misparsed as function
	// definitions; none of them may surface as symbols.
	src := `void outer() {
  auto x = [](int a) { return a; };
  x(1);
}
`
	forest := collectCpp(t, src)
	if n := countKind(forest, KindFunction); n != 1 {
		t.Errorf("expected exactly the outer function, got %d", n)
	}
}

func TestCollect_MemberFunctionOfLocalType(t *testing.T) {
	// A type defined inside a function body may still have methods; the
	// inside-a-body restriction resets at the type boundary.
	src := `void host() {
  struct Local {
    int get() { return 1; }
  };
}
`
	forest := collectCpp(t, src)

	st := findKind(forest, KindStruct)
	if st == nil {
		t.Fatal("local struct not collected")
	}
	if fn := findKind(st.Children, KindFunction); fn == nil {
		t.Errorf("method of local struct not collected: %v", names(st.Children))
	}
}

func TestCollect_MultipleDeclarators(t *testing.T) {
	src := `struct Pack {
  int a, b;
};
`
	forest := collectCpp(t, src)

	st := findKind(forest, KindStruct)
	if st == nil {
		t.Fatal("no struct collected")
	}
	if len(st.Children) != 2 {
		t.Fatalf("expected 2 fields from one declaration, got %v", names(st.Children))
	}
}

func TestCollect_FunctionPointerMember(t *testing.T) {
	src := `struct Ops {
  void (*handler)(int);
};
`
	forest := collectCpp(t, src)

	st := findKind(forest, KindStruct)
	if st == nil {
		t.Fatal("no struct collected")
	}
	fn := findKind(st.Children, KindFunction)
	if fn == nil {
		t.Fatalf("function pointer member should be a function entry: %v", names(st.Children))
	}
	if !fn.Declaration {
		t.Error("function pointer member should be marked declaration")
	}
}

func TestCollect_Macros(t *testing.T) {
	src := `#define MAX_SIZE 1024
#define SQUARE(x) ((x) * (x))
`
	forest := collectCpp(t, src)

	if n := countKind(forest, KindMacro); n != 2 {
		t.Fatalf("expected 2 macros, got %d: %v", n, names(forest))
	}
	got := names(forest)
	want := []string{"MAX_SIZE", "SQUARE(x)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("macros = %v, want %v", got, want)
	}
}

func TestCollect_TypedefAndAlias(t *testing.T) {
	src := `typedef unsigned long size_type;
using Callback = void (*)(int);
`
	forest := collectCpp(t, src)

	td := findKind(forest, KindTypeDef)
	if td == nil || td.Name != "size_type" {
		t.Errorf("typedef not collected: %v", names(forest))
	}
	al := findKind(forest, KindUsingAlias)
	if al == nil || al.Name != "Callback" {
		t.Errorf("using alias not collected: %v", names(forest))
	}
}

func TestCollect_TypedefInlineStruct(t *testing.T) {
	src := `typedef struct Node {
  int value;
} Node;
`
	forest := collect(t, "test.c", src)

	if findKind(forest, KindStruct) == nil {
		t.Errorf("inline struct in typedef not collected: %v", names(forest))
	}
	if findKind(forest, KindTypeDef) == nil {
		t.Errorf("typedef leaf not collected: %v", names(forest))
	}
}

func TestCollect_ExternC(t *testing.T) {
	src := `extern "C" {
void c_entry(void);
}

extern "C" void single(void);
`
	forest := collectCpp(t, src)
	if n := countKind(forest, KindFunction); n != 2 {
		t.Errorf("expected 2 functions through linkage specs, got %d: %v", n, names(forest))
	}
}

func TestCollect_Templates(t *testing.T) {
	src := `template <typename T>
class Stack {
public:
  void push(T value);
};

template <typename T>
T identity(T value) {
  return value;
}
`
	forest := collectCpp(t, src)

	cls := findKind(forest, KindClass)
	if cls == nil || cls.Name != "Stack" {
		t.Fatalf("template class not collected: %v", names(forest))
	}
	if findKind(cls.Children, KindFunction) == nil {
		t.Errorf("template class method not collected: %v", names(cls.Children))
	}
	if n := countKind(forest, KindFunction); n != 2 {
		t.Errorf("expected push and identity, got %d functions", n)
	}
}

func TestCollect_PreprocConditionalTransparent(t *testing.T) {
	src := `class Cfg {
public:
#ifdef FEATURE_X
  int x_;
#else
  int y_;
#endif
  int z_;
};
`
	forest := collectCpp(t, src)

	cls := findKind(forest, KindClass)
	if cls == nil {
		t.Fatal("no class collected")
	}
	// Both branches appear, and the public specifier carries through the
	// conditional to z_.
	if len(cls.Children) != 3 {
		t.Fatalf("expected members from both branches, got %v", names(cls.Children))
	}
	for _, m := range cls.Children {
		if m.Access != AccessPublic {
			t.Errorf("member %q access = %s, want public", m.Name, m.Access)
		}
	}
}

func TestCollect_AccessSpecifierInsideConditional(t *testing.T) {
	src := `struct Mixed {
#ifdef LOCKED
private:
#endif
  int value_;
};
`
	forest := collectCpp(t, src)

	st := findKind(forest, KindStruct)
	if st == nil {
		t.Fatal("no struct collected")
	}
	field := findKind(st.Children, KindField)
	if field == nil {
		t.Fatal("no field collected")
	}
	// The specifier inside the #ifdef applies to siblings after the block,
	// overriding the struct's public default.
	if field.Access != AccessPrivate {
		t.Errorf("field access = %s, want private (specifier crosses #endif)", field.Access)
	}
}

func TestCollect_FileScopeVariable(t *testing.T) {
	src := `static int counter = 0;
`
	forest := collectCpp(t, src)

	v := findKind(forest, KindVariable)
	if v == nil {
		t.Fatalf("file-scope variable not collected: %v", names(forest))
	}
}

func TestCollect_CFile(t *testing.T) {
	src := `#define VERSION "1.0"

struct config {
  int verbose;
};

int main(int argc, char **argv) {
  return 0;
}
`
	forest := collect(t, "main.c", src)

	if findKind(forest, KindMacro) == nil {
		t.Error("macro not collected from C file")
	}
	if findKind(forest, KindStruct) == nil {
		t.Error("struct not collected from C file")
	}
	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("function not collected from C file")
	}
	if fn.Name != "int main(int, char**)" {
		t.Errorf("function name = %q, want %q", fn.Name, "int main(int, char**)")
	}
}

func TestCollect_VariadicFunction(t *testing.T) {
	src := `int printf_like(const char *fmt, ...);
`
	forest := collectCpp(t, src)

	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("variadic prototype not collected")
	}
	if fn.Name != "int printf_like(const char*, ...)" {
		t.Errorf("name = %q, want %q", fn.Name, "int printf_like(const char*, ...)")
	}
}

func TestCollect_SourceOrderPreserved(t *testing.T) {
	src := `void zeta() {}
void alpha() {}
void mango() {}
`
	forest := collectCpp(t, src)

	got := names(forest)
	want := []string{"void zeta()", "void alpha()", "void mango()"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want source order %v", got, want)
	}
}

func TestCollect_Idempotent(t *testing.T) {
	src := `namespace app {
class Widget {
public:
  Widget();
  int count() const;
private:
  int count_;
};
void run() {}
}
`
	parser := NewParser()
	tree, err := parser.ParseFull(context.Background(), []byte(src), "test.cpp")
	if err != nil {
		t.Fatalf("ParseFull failed: %v", err)
	}
	defer tree.Close()

	c := NewCollector()
	first, _ := c.Collect(tree.RootNode(), []byte(src))
	second, _ := c.Collect(tree.RootNode(), []byte(src))

	if !reflect.DeepEqual(first, second) {
		t.Error("collecting the same tree twice produced different forests")
	}
}

func TestCollect_RangesContainChildren(t *testing.T) {
	src := `namespace app {
class Widget {
public:
  void render() {
    struct Frame { int id; };
  }
};
}
`
	forest := collectCpp(t, src)

	for _, root := range forest {
		if err := root.Validate(); err != nil {
			t.Errorf("containment violated: %v", err)
		}
	}
}

func TestCollect_LineNumbers(t *testing.T) {
	src := `int first() { return 1; }

int second() {
  return 2;
}
`
	forest := collectCpp(t, src)

	if len(forest) != 2 {
		t.Fatalf("expected 2 functions, got %v", names(forest))
	}
	if forest[0].StartLine != 1 || forest[0].EndLine != 1 {
		t.Errorf("first() range = [%d,%d], want [1,1]", forest[0].StartLine, forest[0].EndLine)
	}
	if forest[1].StartLine != 3 || forest[1].EndLine != 5 {
		t.Errorf("second() range = [%d,%d], want [3,5]", forest[1].StartLine, forest[1].EndLine)
	}
}

func TestCollect_SyntaxErrorTolerance(t *testing.T) {
	// The damaged region must not take down collection of healthy siblings.
	src := `void good_before() {}

void broken( {

void good_after() {}
`
	forest := collectCpp(t, src)

	found := false
	for _, n := range forest {
		if n.Kind == KindFunction && n.Name == "void good_before()" {
			found = true
		}
	}
	if !found {
		t.Errorf("healthy function lost to a syntax error elsewhere: %v", names(forest))
	}
}

func TestCollect_EmptySource(t *testing.T) {
	forest := collectCpp(t, "")
	if len(forest) != 0 {
		t.Errorf("empty source produced symbols: %v", names(forest))
	}
}

func TestCollect_NilRoot(t *testing.T) {
	nodes, errs := NewCollector().Collect(nil, nil)
	if nodes != nil || errs != nil {
		t.Error("nil root should produce nothing")
	}
}

func TestCollect_Union(t *testing.T) {
	src := `union Value {
  int i;
  float f;
};
`
	forest := collectCpp(t, src)

	u := findKind(forest, KindUnion)
	if u == nil {
		t.Fatal("no union collected")
	}
	if len(u.Children) != 2 {
		t.Errorf("expected 2 union members, got %v", names(u.Children))
	}
}

func TestCollect_NestedTypes(t *testing.T) {
	src := `class Outer {
public:
  class Inner {
  public:
    void method();
  };
};
`
	forest := collectCpp(t, src)

	outer := findKind(forest, KindClass)
	if outer == nil || outer.Name != "Outer" {
		t.Fatal("outer class not collected")
	}
	inner := findKind(outer.Children, KindClass)
	if inner == nil || inner.Name != "Inner" {
		t.Fatalf("nested class not collected: %v", names(outer.Children))
	}
	if fn := findKind(inner.Children, KindFunction); fn == nil {
		t.Errorf("nested class method not collected: %v", names(inner.Children))
	}
}

func TestCollect_OutOfClassMethodDefinition(t *testing.T) {
	src := `int Widget::count() const {
  return count_;
}
`
	forest := collectCpp(t, src)

	fn := findKind(forest, KindFunction)
	if fn == nil {
		t.Fatal("out-of-class method not collected")
	}
	if fn.Name != "int Widget::count()" {
		t.Errorf("name = %q, want %q", fn.Name, "int Widget::count()")
	}
}
