package vm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/value"
	"github.com/mna/lispcore/lang/vm"
)

// testEnv bundles the pieces an embedder wires together: one heap, one
// interner, one global slot table shared by a Compiler and a Thread. Forms
// are built programmatically, standing in for the reader front end.
type testEnv struct {
	t    *testing.T
	hp   *heap.Heap
	it   *intern.Table
	gt   *compiler.GlobalTable
	comp *compiler.Compiler
	th   *vm.Thread
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	hp := heap.New(0)
	it := &intern.Table{}
	gt := compiler.NewGlobalTable()
	th := vm.NewThread("test", hp, it, gt)
	comp := compiler.New(it, hp, gt)
	comp.Macros = th

	th.RegisterBuiltin("cons", func(_ *vm.Thread, args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, hp.AsGoError(hp.NewError(":arity", "cons wants 2 arguments", value.Nil))
		}
		return hp.NewPair(args[0], args[1]), nil
	})
	th.RegisterBuiltin("car", func(_ *vm.Thread, args []value.Value) (value.Value, error) {
		return hp.Car(args[0].(heap.Handle))
	})
	th.RegisterBuiltin("cdr", func(_ *vm.Thread, args []value.Value) (value.Value, error) {
		return hp.Cdr(args[0].(heap.Handle))
	})

	return &testEnv{t: t, hp: hp, it: it, gt: gt, comp: comp, th: th}
}

func (e *testEnv) sym(name string) value.Symbol {
	return value.NewSymbol(e.it.Intern(name), name)
}

func (e *testEnv) kw(name string) value.Keyword {
	return value.NewKeyword(e.it.Intern(name), name)
}

func (e *testEnv) str(s string) value.StringConst {
	return value.NewStringConst(e.it.Intern(s), s)
}

func (e *testEnv) list(vals ...value.Value) value.Value {
	return e.hp.ConsList(vals)
}

func (e *testEnv) vec(vals ...value.Value) value.Value {
	return e.hp.NewVector(vals)
}

func (e *testEnv) mp(pairs ...value.Value) value.Value {
	if len(pairs)%2 != 0 {
		e.t.Fatal("mp wants key/value pairs")
	}
	m := e.hp.NewMap(len(pairs) / 2)
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(e.t, e.hp.MapSet(m, pairs[i], pairs[i+1]))
	}
	return m
}

func (e *testEnv) quote(v value.Value) value.Value {
	return e.list(e.sym("quote"), v)
}

// run compiles and executes each form in order (the way a REPL would) and
// returns the last form's value.
func (e *testEnv) run(forms ...value.Value) (value.Value, error) {
	e.t.Helper()
	var last value.Value
	for _, form := range forms {
		chunk, err := e.comp.CompileToplevel(form, "test")
		if err != nil {
			return nil, err
		}
		last, err = e.th.RunProgram(context.Background(), chunk)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// mustDisplay runs the forms and renders the result.
func (e *testEnv) mustDisplay(forms ...value.Value) string {
	e.t.Helper()
	v, err := e.run(forms...)
	require.NoError(e.t, err)
	return e.hp.Display(v)
}

func TestSelfEvaluating(t *testing.T) {
	e := newEnv(t)
	v, err := e.run(value.Int(42))
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v)

	v, err = e.run(value.True)
	require.NoError(t, err)
	assert.Equal(t, value.True, v)

	v, err = e.run(e.kw("boom"))
	require.NoError(t, err)
	assert.Equal(t, e.kw("boom"), v)
}

func TestArithmetic(t *testing.T) {
	e := newEnv(t)
	add := func(vals ...value.Value) value.Value {
		return e.list(append([]value.Value{e.sym("+")}, vals...)...)
	}
	v, err := e.run(add(value.Int(1), value.Int(2), value.Int(3)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(6), v)

	v, err = e.run(e.list(e.sym("-"), value.Int(10), value.Int(4)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(6), v)

	v, err = e.run(e.list(e.sym("-"), value.Int(5)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(-5), v)

	v, err = e.run(e.list(e.sym("//"), value.Int(-7), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(-4), v, "integer division floors")

	v, err = e.run(e.list(e.sym("rem"), value.Int(-7), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	// int+float does not promote
	_, err = e.run(add(value.Int(1), value.Float(2)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:type]")
}

func TestComparisons(t *testing.T) {
	e := newEnv(t)
	v, err := e.run(e.list(e.sym("<"), value.Int(1), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.True, v)

	v, err = e.run(e.list(e.sym(">="), value.Int(1), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.False, v)

	_, err = e.run(e.list(e.sym("<"), value.Int(1), value.Float(2)))
	require.Error(t, err, "ordering across types is an error")
}

func TestEqualStructural(t *testing.T) {
	e := newEnv(t)
	form := e.list(e.sym("equal?"),
		e.quote(e.list(value.Int(1), value.Int(2))),
		e.list(e.sym("list"), value.Int(1), value.Int(2)))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.True, v)
}

func TestIfAndTruthiness(t *testing.T) {
	e := newEnv(t)
	iff := func(cond value.Value) value.Value {
		return e.list(e.sym("if"), cond, e.kw("yes"), e.kw("no"))
	}
	for _, tc := range []struct {
		cond value.Value
		want string
	}{
		{value.False, ":no"},
		{value.Nil, ":no"},
		{value.Int(0), ":yes"},
		{value.True, ":yes"},
		{e.str(""), ":yes"},
	} {
		v, err := e.run(iff(tc.cond))
		require.NoError(t, err)
		assert.Equal(t, tc.want, v.String())
	}
}

func TestAndOr(t *testing.T) {
	e := newEnv(t)
	v, err := e.run(e.list(e.sym("and"), value.Int(1), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)

	v, err = e.run(e.list(e.sym("and"), value.False, value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.False, v)

	v, err = e.run(e.list(e.sym("or"), value.False, value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)
}

func TestLetBasics(t *testing.T) {
	e := newEnv(t)
	// (let (a 1 b 2 c 3) (list a b c)) => (1 2 3)
	form := e.list(e.sym("let"),
		e.list(e.sym("a"), value.Int(1), e.sym("b"), value.Int(2), e.sym("c"), value.Int(3)),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(form))
}

func TestLetLaterBindingSeesEarlier(t *testing.T) {
	e := newEnv(t)
	// (let (x 10 y (+ x 10)) (set! x 5) (list x y)) => (5 20)
	form := e.list(e.sym("let"),
		e.list(e.sym("x"), value.Int(10), e.sym("y"), e.list(e.sym("+"), e.sym("x"), value.Int(10))),
		e.list(e.sym("set!"), e.sym("x"), value.Int(5)),
		e.list(e.sym("list"), e.sym("x"), e.sym("y")))
	assert.Equal(t, "(5 20)", e.mustDisplay(form))
}

func TestLetSetBangTargetsLocal(t *testing.T) {
	e := newEnv(t)
	// (do (def x 3) (let (x 10) (set! x 1)) x) => 3
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("x"), value.Int(3)),
		e.list(e.sym("let"), e.list(e.sym("x"), value.Int(10)),
			e.list(e.sym("set!"), e.sym("x"), value.Int(1))),
		e.sym("x"))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)
}

func TestLetShadowingRebind(t *testing.T) {
	e := newEnv(t)
	// (let (a 10 b 20 c 30 a (- a 9) b (- b 18) c (- c 27)) (list a b c))
	// => (1 2 3): each rebind's value sees the binding it shadows
	form := e.list(e.sym("let"),
		e.list(
			e.sym("a"), value.Int(10), e.sym("b"), value.Int(20), e.sym("c"), value.Int(30),
			e.sym("a"), e.list(e.sym("-"), e.sym("a"), value.Int(9)),
			e.sym("b"), e.list(e.sym("-"), e.sym("b"), value.Int(18)),
			e.sym("c"), e.list(e.sym("-"), e.sym("c"), value.Int(27))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(form))
}

func TestLetNestedShadowSeesOuter(t *testing.T) {
	e := newEnv(t)
	// (let (a 10) (let (a (- a 9)) a)) => 1
	form := e.list(e.sym("let"), e.list(e.sym("a"), value.Int(10)),
		e.list(e.sym("let"), e.list(e.sym("a"), e.list(e.sym("-"), e.sym("a"), value.Int(9))),
			e.sym("a")))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)
}

func TestLetMutualRecursion(t *testing.T) {
	e := newEnv(t)
	// fresh sibling bindings may reference each other:
	// (let (fnx (fn (x) (if (= x 0) #t (fny (- x 1))))
	//       fny (fn (y) (if (= y 0) #t (fnx (- y 1))))) (fnx 10)) => #t
	fnx := e.list(e.sym("fn"), e.vec(e.sym("x")),
		e.list(e.sym("if"), e.list(e.sym("="), e.sym("x"), value.Int(0)),
			value.True, e.list(e.sym("fny"), e.list(e.sym("-"), e.sym("x"), value.Int(1)))))
	fny := e.list(e.sym("fn"), e.vec(e.sym("y")),
		e.list(e.sym("if"), e.list(e.sym("="), e.sym("y"), value.Int(0)),
			value.True, e.list(e.sym("fnx"), e.list(e.sym("-"), e.sym("y"), value.Int(1)))))
	form := e.list(e.sym("let"),
		e.list(e.sym("fnx"), fnx, e.sym("fny"), fny),
		e.list(e.sym("fnx"), value.Int(10)))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.True, v)
}

func TestLetOddBindingsFails(t *testing.T) {
	e := newEnv(t)
	form := e.list(e.sym("let"), e.list(e.sym("x")), e.sym("x"))
	_, err := e.run(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:compile]")
}

func TestLetUndefinedValueFails(t *testing.T) {
	e := newEnv(t)
	form := e.list(e.sym("let"),
		e.list(e.sym("x"), e.sym("y-undef")),
		e.sym("x"))
	_, err := e.run(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined symbol")
}

func TestDestructureVector(t *testing.T) {
	e := newEnv(t)
	// (let ([a b c] '(1 2 3)) (list a b c)) => (1 2 3)
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("b"), e.sym("c")), e.quote(e.list(value.Int(1), value.Int(2), value.Int(3)))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(form))
}

func TestDestructureOptionalsAndDefaults(t *testing.T) {
	e := newEnv(t)
	// (let ([a b % c := :none d] '(1 2)) (list a b c d)) => (1 2 :none nil)
	pattern := e.vec(e.sym("a"), e.sym("b"), e.sym("%"), e.sym("c"), e.sym(":="), e.kw("none"), e.sym("d"))
	form := e.list(e.sym("let"),
		e.list(pattern, e.quote(e.list(value.Int(1), value.Int(2)))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c"), e.sym("d")))
	assert.Equal(t, "(1 2 :none nil)", e.mustDisplay(form))
}

func TestDestructureMap(t *testing.T) {
	e := newEnv(t)
	// (let ({a :a, b :b, c :c} {:a 1 :b 2 :c 3}) (list a b c)) => (1 2 3)
	pattern := e.mp(e.sym("a"), e.kw("a"), e.sym("b"), e.kw("b"), e.sym("c"), e.kw("c"))
	src := e.mp(e.kw("a"), value.Int(1), e.kw("b"), value.Int(2), e.kw("c"), value.Int(3))
	form := e.list(e.sym("let"),
		e.list(pattern, src),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(form))
}

func TestDestructureMapOverPlistAndIndex(t *testing.T) {
	e := newEnv(t)
	// (let ({a :a, b :b} '(:a 1 :b 2)) (list a b)) => (1 2)
	pattern := e.mp(e.sym("a"), e.kw("a"), e.sym("b"), e.kw("b"))
	form := e.list(e.sym("let"),
		e.list(pattern, e.quote(e.list(e.kw("a"), value.Int(1), e.kw("b"), value.Int(2)))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b")))
	assert.Equal(t, "(1 2)", e.mustDisplay(form))

	// int keys index the sequence: (let ({a 1, b 0} [10 20]) (list a b)) => (20 10)
	pattern2 := e.mp(e.sym("a"), value.Int(1), e.sym("b"), value.Int(0))
	form2 := e.list(e.sym("let"),
		e.list(pattern2, e.vec(value.Int(10), value.Int(20))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b")))
	assert.Equal(t, "(20 10)", e.mustDisplay(form2))
}

func TestDestructureMissingRequiredFails(t *testing.T) {
	e := newEnv(t)
	// (let ([a b c] [1 2]) nil) => runtime error
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("b"), e.sym("c")), e.vec(value.Int(1), value.Int(2))),
		value.Nil)
	_, err := e.run(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:vm]")

	// missing map key: (let ({a :a} {}) nil) => runtime error
	form2 := e.list(e.sym("let"),
		e.list(e.mp(e.sym("a"), e.kw("a")), e.mp()),
		value.Nil)
	_, err = e.run(form2)
	require.Error(t, err)
}

func TestDestructureExcessElementsFails(t *testing.T) {
	e := newEnv(t)
	// (let ([a b] '(1 2 3)) nil) => runtime error, but [a b &] tolerates it
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("b")), e.quote(e.list(value.Int(1), value.Int(2), value.Int(3)))),
		value.Nil)
	_, err := e.run(form)
	require.Error(t, err)

	form2 := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("b"), e.sym("&")), e.quote(e.list(value.Int(1), value.Int(2), value.Int(3)))),
		e.sym("a"))
	v, err := e.run(form2)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)
}

func TestDestructureRestBinding(t *testing.T) {
	e := newEnv(t)
	// (let ([a & r] '(1 2 3)) (list a r)) => (1 (2 3))
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("&"), e.sym("r")), e.quote(e.list(value.Int(1), value.Int(2), value.Int(3)))),
		e.list(e.sym("list"), e.sym("a"), e.sym("r")))
	assert.Equal(t, "(1 (2 3))", e.mustDisplay(form))
}

func TestDestructureNested(t *testing.T) {
	e := newEnv(t)
	// (let ([a [b c]] '(1 (2 3))) (list a b c)) => (1 2 3)
	inner := e.vec(e.sym("b"), e.sym("c"))
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), inner),
			e.quote(e.list(value.Int(1), e.list(value.Int(2), value.Int(3))))),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(form))
}

func TestFnCallAndArity(t *testing.T) {
	e := newEnv(t)
	// ((fn [a b] (+ a b)) 1 2) => 3
	fn := e.list(e.sym("fn"), e.vec(e.sym("a"), e.sym("b")),
		e.list(e.sym("+"), e.sym("a"), e.sym("b")))
	v, err := e.run(e.list(fn, value.Int(1), value.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)

	_, err = e.run(e.list(fn, value.Int(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:arity]")

	_, err = e.run(e.list(fn, value.Int(1), value.Int(2), value.Int(3)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:arity]")
}

func TestFnOptionalParams(t *testing.T) {
	e := newEnv(t)
	// (fn [a % b := 10 c] (list a b c))
	fn := e.list(e.sym("fn"),
		e.vec(e.sym("a"), e.sym("%"), e.sym("b"), e.sym(":="), value.Int(10), e.sym("c")),
		e.list(e.sym("list"), e.sym("a"), e.sym("b"), e.sym("c")))
	assert.Equal(t, "(1 10 nil)", e.mustDisplay(e.list(fn, value.Int(1))))
	assert.Equal(t, "(1 2 3)", e.mustDisplay(e.list(fn, value.Int(1), value.Int(2), value.Int(3))))
}

func TestFnRestParam(t *testing.T) {
	e := newEnv(t)
	// (fn [a & r] (list a r))
	fn := e.list(e.sym("fn"), e.vec(e.sym("a"), e.sym("&"), e.sym("r")),
		e.list(e.sym("list"), e.sym("a"), e.sym("r")))
	assert.Equal(t, "(1 (2 3))", e.mustDisplay(e.list(fn, value.Int(1), value.Int(2), value.Int(3))))
	assert.Equal(t, "(1 nil)", e.mustDisplay(e.list(fn, value.Int(1))))
}

func TestClosureCapture(t *testing.T) {
	e := newEnv(t)
	// (do (def counter (let (n 0) (fn [] (set! n (+ n 1)) n)))
	//     (counter) (counter) (counter)) => 3
	mk := e.list(e.sym("let"), e.list(e.sym("n"), value.Int(0)),
		e.list(e.sym("fn"), e.vec(),
			e.list(e.sym("set!"), e.sym("n"), e.list(e.sym("+"), e.sym("n"), value.Int(1))),
			e.sym("n")))
	v, err := e.run(
		e.list(e.sym("do"),
			e.list(e.sym("def"), e.sym("counter"), mk),
			e.list(e.sym("counter")),
			e.list(e.sym("counter")),
			e.list(e.sym("counter"))))
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)
}

func TestSharedCaptureCell(t *testing.T) {
	e := newEnv(t)
	// two closures over the same binding observe each other's writes
	// (do (def fns (let (n 0) (list (fn [] (set! n (+ n 1))) (fn [] n))))
	//     ((car fns)) ((car fns)) ((car (cdr fns)))) => 2
	mk := e.list(e.sym("let"), e.list(e.sym("n"), value.Int(0)),
		e.list(e.sym("list"),
			e.list(e.sym("fn"), e.vec(), e.list(e.sym("set!"), e.sym("n"), e.list(e.sym("+"), e.sym("n"), value.Int(1)))),
			e.list(e.sym("fn"), e.vec(), e.sym("n"))))
	v, err := e.run(
		e.list(e.sym("do"),
			e.list(e.sym("def"), e.sym("fns"), mk),
			e.list(e.list(e.sym("car"), e.sym("fns"))),
			e.list(e.list(e.sym("car"), e.sym("fns"))),
			e.list(e.list(e.sym("car"), e.list(e.sym("cdr"), e.sym("fns"))))))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)
	// a later top-level call of the reader observes the same cell
	v2, err := e.run(e.list(e.list(e.sym("car"), e.list(e.sym("cdr"), e.sym("fns")))))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v2)
}

func TestDeferRunsOnExitAgainstGlobals(t *testing.T) {
	e := newEnv(t)
	// (do (def x 1) (let (x 10) (defer (set! x 5)) (set! x x)) x) => 5
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("x"), value.Int(1)),
		e.list(e.sym("let"), e.list(e.sym("x"), value.Int(10)),
			e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("x"), value.Int(5))),
			e.list(e.sym("set!"), e.sym("x"), e.sym("x"))),
		e.sym("x"))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), v)
}

func TestDeferOrderingLIFO(t *testing.T) {
	e := newEnv(t)
	// (do (def x 0) (let (a 1) (defer (set! x 1)) (defer (set! x 2))) x) => 1
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("x"), value.Int(0)),
		e.list(e.sym("let"), e.list(e.sym("a"), value.Int(1)),
			e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("x"), value.Int(1))),
			e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("x"), value.Int(2)))),
		e.sym("x"))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)
}

func TestDeferValuesBeforeAndAfterExit(t *testing.T) {
	e := newEnv(t)
	defs := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("x"), value.Int(1)),
		e.list(e.sym("def"), e.sym("y"), value.Int(2)),
		e.list(e.sym("def"), e.sym("z"), value.Int(3)))

	// reading inside the let, before the defers run: (10 20 30)
	inside := e.list(e.sym("let"),
		e.list(e.sym("xl"), value.Int(10), e.sym("yl"), value.Int(20), e.sym("zl"), value.Int(30)),
		e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("x"), value.Int(5))),
		e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("y"), value.Int(6))),
		e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("z"), value.Int(7))),
		e.list(e.sym("set!"), e.sym("x"), e.sym("xl")),
		e.list(e.sym("set!"), e.sym("y"), e.sym("yl")),
		e.list(e.sym("set!"), e.sym("z"), e.sym("zl")),
		e.list(e.sym("list"), e.sym("x"), e.sym("y"), e.sym("z")))
	assert.Equal(t, "(10 20 30)", e.mustDisplay(defs, inside))

	// reading after the let: the defers have rewritten the globals
	after := e.list(e.sym("do"), inside, e.list(e.sym("list"), e.sym("x"), e.sym("y"), e.sym("z")))
	assert.Equal(t, "(5 6 7)", e.mustDisplay(defs, after))
}

func TestDeferRunsOnErrorExit(t *testing.T) {
	e := newEnv(t)
	// the erroring function's defers run before the error reaches the
	// caller's handler:
	// (do (def x 0)
	//     (def f (fn [] (defer (set! x 9)) (err :boom nil)))
	//     (on-error (f) (fn [er] x))) => 9
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("x"), value.Int(0)),
		e.list(e.sym("def"), e.sym("f"),
			e.list(e.sym("fn"), e.vec(),
				e.list(e.sym("defer"), e.list(e.sym("set!"), e.sym("x"), value.Int(9))),
				e.list(e.sym("err"), e.kw("boom"), value.Nil))),
		e.list(e.sym("on-error"),
			e.list(e.sym("f")),
			e.list(e.sym("fn"), e.vec(e.sym("er")), e.sym("x"))))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(9), v)
}

func TestOnErrorCatches(t *testing.T) {
	e := newEnv(t)
	// (on-error (err :boom 42) (fn [er] :caught)) => :caught
	form := e.list(e.sym("on-error"),
		e.list(e.sym("err"), e.kw("boom"), value.Int(42)),
		e.list(e.sym("fn"), e.vec(e.sym("er")), e.kw("caught")))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, ":caught", v.String())
}

func TestOnErrorBodyValueWhenNoError(t *testing.T) {
	e := newEnv(t)
	form := e.list(e.sym("on-error"), value.Int(7),
		e.list(e.sym("fn"), e.vec(e.sym("er")), e.kw("caught")))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(7), v)
}

func TestUncaughtErrorSurfaces(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(e.list(e.sym("err"), e.kw("boom"), value.Int(1)))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "error [:boom]"), err.Error())
}

func TestNestedOnErrorInnerWins(t *testing.T) {
	e := newEnv(t)
	// (on-error (on-error (err :boom nil) (fn [er] :inner)) (fn [er] :outer))
	inner := e.list(e.sym("on-error"),
		e.list(e.sym("err"), e.kw("boom"), value.Nil),
		e.list(e.sym("fn"), e.vec(e.sym("er")), e.kw("inner")))
	form := e.list(e.sym("on-error"), inner,
		e.list(e.sym("fn"), e.vec(e.sym("er")), e.kw("outer")))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, ":inner", v.String())
}

func TestOnErrorCatchesCalleeError(t *testing.T) {
	e := newEnv(t)
	// errors unwinding out of a nested call reach the handler
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("blow"),
			e.list(e.sym("fn"), e.vec(), e.list(e.sym("err"), e.kw("deep"), value.Nil))),
		e.list(e.sym("on-error"),
			e.list(e.sym("blow")),
			e.list(e.sym("fn"), e.vec(e.sym("er")), e.kw("caught"))))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, ":caught", v.String())
}

func TestTailCallMutualRecursionBounded(t *testing.T) {
	e := newEnv(t)
	// (let (even? (fn (n) (if (= n 0) #t (odd? (- n 1))))
	//       odd?  (fn (n) (if (= n 0) #f (even? (- n 1)))))
	//   (even? 1000000)) => #t in bounded memory
	evenFn := e.list(e.sym("fn"), e.vec(e.sym("n")),
		e.list(e.sym("if"), e.list(e.sym("="), e.sym("n"), value.Int(0)),
			value.True,
			e.list(e.sym("odd?"), e.list(e.sym("-"), e.sym("n"), value.Int(1)))))
	oddFn := e.list(e.sym("fn"), e.vec(e.sym("n")),
		e.list(e.sym("if"), e.list(e.sym("="), e.sym("n"), value.Int(0)),
			value.False,
			e.list(e.sym("even?"), e.list(e.sym("-"), e.sym("n"), value.Int(1)))))
	form := e.list(e.sym("let"),
		e.list(e.sym("even?"), evenFn, e.sym("odd?"), oddFn),
		e.list(e.sym("even?"), value.Int(1000000)))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.True, v)
	// tail calls reuse frames: the call chain never grows
	assert.Less(t, e.hp.Stats()["call-frame"], 10)
}

func TestTailCallComputedCallee(t *testing.T) {
	e := newEnv(t)
	// a parameter in tail position is a first-class callee; its register
	// must survive the argument shuffle of the tail call:
	// (def apply2 (fn (f) (f 1 2))) (apply2 (fn (a b) (+ a b))) => 3
	v, err := e.run(
		e.list(e.sym("def"), e.sym("apply2"),
			e.list(e.sym("fn"), e.vec(e.sym("f")),
				e.list(e.sym("f"), value.Int(1), value.Int(2)))),
		e.list(e.sym("apply2"),
			e.list(e.sym("fn"), e.vec(e.sym("a"), e.sym("b")),
				e.list(e.sym("+"), e.sym("a"), e.sym("b")))))
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)
}

func TestTailCallComputedCalleeLoops(t *testing.T) {
	e := newEnv(t)
	// trampoline shape: the loop parameter tail-calls itself through a
	// first-class reference, so each iteration reuses the frame
	// (def tramp (fn (g n) (if (= n 0) :done (g g (- n 1)))))
	// (tramp tramp 100000) => :done
	body := e.list(e.sym("if"), e.list(e.sym("="), e.sym("n"), value.Int(0)),
		e.kw("done"),
		e.list(e.sym("g"), e.sym("g"), e.list(e.sym("-"), e.sym("n"), value.Int(1))))
	v, err := e.run(
		e.list(e.sym("def"), e.sym("tramp"),
			e.list(e.sym("fn"), e.vec(e.sym("g"), e.sym("n")), body)),
		e.list(e.sym("tramp"), e.sym("tramp"), value.Int(100000)))
	require.NoError(t, err)
	assert.Equal(t, ":done", v.String())
	assert.Less(t, e.hp.Stats()["call-frame"], 10)
}

func TestSelfTailRecursionViaThisFn(t *testing.T) {
	e := newEnv(t)
	// ((fn (n) (if (= n 0) :done (this-fn (- n 1)))) 100000) => :done
	fn := e.list(e.sym("fn"), e.vec(e.sym("n")),
		e.list(e.sym("if"), e.list(e.sym("="), e.sym("n"), value.Int(0)),
			e.kw("done"),
			e.list(e.sym("this-fn"), e.list(e.sym("-"), e.sym("n"), value.Int(1)))))
	v, err := e.run(e.list(fn, value.Int(100000)))
	require.NoError(t, err)
	assert.Equal(t, ":done", v.String())
}

func TestWhileLoop(t *testing.T) {
	e := newEnv(t)
	// (do (def i 0) (while (< i 5) (set! i (+ i 1))) i) => 5
	form := e.list(e.sym("do"),
		e.list(e.sym("def"), e.sym("i"), value.Int(0)),
		e.list(e.sym("while"), e.list(e.sym("<"), e.sym("i"), value.Int(5)),
			e.list(e.sym("set!"), e.sym("i"), e.list(e.sym("+"), e.sym("i"), value.Int(1)))),
		e.sym("i"))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), v)
}

func TestQuoteAndQuasiquote(t *testing.T) {
	e := newEnv(t)
	v, err := e.run(e.quote(e.sym("foo")))
	require.NoError(t, err)
	assert.Equal(t, "foo", v.String())

	// `(1 ~(+ 1 1) ~@(list 3 4)) => (1 2 3 4)
	tmpl := e.list(value.Int(1),
		e.list(e.sym("unquote"), e.list(e.sym("+"), value.Int(1), value.Int(1))),
		e.list(e.sym("unquote-splice"), e.list(e.sym("list"), value.Int(3), value.Int(4))))
	form := e.list(e.sym("quasiquote"), tmpl)
	assert.Equal(t, "(1 2 3 4)", e.mustDisplay(form))
}

func TestMacroExpansion(t *testing.T) {
	e := newEnv(t)
	// (def double (macro [x] (list (quote +) x x))) then (double 21) => 42
	defMacro := e.list(e.sym("def"), e.sym("double"),
		e.list(e.sym("macro"), e.vec(e.sym("x")),
			e.list(e.sym("list"), e.quote(e.sym("+")), e.sym("x"), e.sym("x"))))
	v, err := e.run(defMacro, e.list(e.sym("double"), value.Int(21)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v)

	// the global carries the :macro property
	v, err = e.run(e.list(e.sym("get-prop"), e.quote(e.sym("double")), e.kw("macro")))
	require.NoError(t, err)
	assert.Equal(t, value.True, v)
}

func TestGlobalPropRoundTrip(t *testing.T) {
	e := newEnv(t)
	// (def x 1) (set-prop 'x :doc "d") (get-prop 'x :doc) => "d"
	v, err := e.run(
		e.list(e.sym("def"), e.sym("x"), value.Int(1)),
		e.list(e.sym("set-prop"), e.quote(e.sym("x")), e.kw("doc"), e.str("d")),
		e.list(e.sym("get-prop"), e.quote(e.sym("x")), e.kw("doc")))
	require.NoError(t, err)
	assert.Equal(t, "d", v.String())

	// unknown property reads as nil
	v, err = e.run(e.list(e.sym("get-prop"), e.quote(e.sym("x")), e.kw("nope")))
	require.NoError(t, err)
	assert.Equal(t, value.Value(value.Nil), v)
}

func TestPairMutation(t *testing.T) {
	e := newEnv(t)
	// (do (def p (cons 1 2)) (xar! p 9) p) => (9 . 2)
	v, err := e.run(
		e.list(e.sym("def"), e.sym("p"), e.list(e.sym("cons"), value.Int(1), value.Int(2))),
		e.list(e.sym("xar!"), e.sym("p"), value.Int(9)),
		e.sym("p"))
	require.NoError(t, err)
	assert.Equal(t, "(9 . 2)", e.hp.Display(v))

	// car/cdr of a cons observe construction
	v, err = e.run(e.list(e.sym("car"), e.sym("p")))
	require.NoError(t, err)
	assert.Equal(t, value.Int(9), v)
	v, err = e.run(e.list(e.sym("cdr"), e.sym("p")))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)
}

func TestListViewIsReadOnly(t *testing.T) {
	e := newEnv(t)
	// a rest binding is a read-only view: (let ([a & r] '(1 2 3)) (xar! r 9))
	form := e.list(e.sym("let"),
		e.list(e.vec(e.sym("a"), e.sym("&"), e.sym("r")), e.quote(e.list(value.Int(1), value.Int(2), value.Int(3)))),
		e.list(e.sym("xar!"), e.sym("r"), value.Int(9)))
	_, err := e.run(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:heap]")
}

func TestXarOnNilAutoPromotes(t *testing.T) {
	e := newEnv(t)
	// (let (p nil) (xar! p 9)) => (9)
	form := e.list(e.sym("let"), e.list(e.sym("p"), value.Nil),
		e.list(e.sym("xar!"), e.sym("p"), value.Int(9)))
	assert.Equal(t, "(9)", e.mustDisplay(form))
}

func TestCallCCEscapes(t *testing.T) {
	e := newEnv(t)
	// (+ 1 (call/cc (fn [k] (k 10) 99))) => 11: (k 10) escapes past the 99
	form := e.list(e.sym("+"), value.Int(1),
		e.list(e.sym("call/cc"),
			e.list(e.sym("fn"), e.vec(e.sym("k")),
				e.list(e.sym("k"), value.Int(10)),
				value.Int(99))))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(11), v)
}

func TestCallCCNoEscape(t *testing.T) {
	e := newEnv(t)
	// when f returns normally, call/cc yields f's value
	form := e.list(e.sym("call/cc"),
		e.list(e.sym("fn"), e.vec(e.sym("k")), value.Int(7)))
	v, err := e.run(form)
	require.NoError(t, err)
	assert.Equal(t, value.Int(7), v)
}

func TestReturnForm(t *testing.T) {
	e := newEnv(t)
	// ((fn [a] (if a (return 1) nil) 2)) — return short-circuits the body
	fn := e.list(e.sym("fn"), e.vec(e.sym("a")),
		e.list(e.sym("if"), e.sym("a"), e.list(e.sym("return"), value.Int(1)), value.Nil),
		value.Int(2))
	v, err := e.run(e.list(fn, value.True))
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	v, err = e.run(e.list(fn, value.False))
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)
}

func TestBuiltinRegistrationHook(t *testing.T) {
	e := newEnv(t)
	e.th.RegisterBuiltin("mul7", func(_ *vm.Thread, args []value.Value) (value.Value, error) {
		n := args[0].(value.Int)
		return value.Int(n * 7), nil
	})
	v, err := e.run(e.list(e.sym("mul7"), value.Int(6)))
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v)
}

func TestStepLimitInterrupts(t *testing.T) {
	e := newEnv(t)
	e.th.MaxSteps = 1000
	// (while #t nil) never terminates on its own
	form := e.list(e.sym("while"), value.True, value.Nil)
	_, err := e.run(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:interrupted]")
}

func TestCancelInterrupts(t *testing.T) {
	e := newEnv(t)
	e.th.Cancel()
	_, err := e.run(value.Int(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:interrupted]")
	assert.True(t, e.th.Cancelled())
}

func TestUndefinedGlobalCallFails(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(e.list(e.sym("no-such-fn"), value.Int(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[:compile]")
}

func TestDisplayRoundTrip(t *testing.T) {
	e := newEnv(t)
	for _, tc := range []struct {
		form value.Value
		want string
	}{
		{value.Int(42), "42"},
		{value.True, "#t"},
		{value.Nil, "nil"},
		{e.kw("k"), ":k"},
		{e.quote(e.list(value.Int(1), value.Int(2))), "(1 2)"},
		{e.vec(value.Int(1), value.Int(2)), "[1 2]"},
	} {
		assert.Equal(t, tc.want, e.mustDisplay(tc.form))
	}
}
