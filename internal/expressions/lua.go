package expressions

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/rendis/stepwise/pkg/schema"
)

const luaGlobalTableName = "_G"

// Globals removed from every evaluation state.
var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// LuaEvaluator implements Evaluator using Shopify/go-lua. Context variables
// are exposed as globals. An expression is first tried as `return <expr>`
// and otherwise run as a chunk whose first return value is the result.
// Each evaluation uses a fresh sandboxed state, so no globals survive
// between evaluations.
type LuaEvaluator struct {
	mu    sync.RWMutex
	cache map[string][]byte // expression -> bytecode
}

// NewLuaEvaluator creates a new Lua evaluator.
func NewLuaEvaluator() *LuaEvaluator {
	return &LuaEvaluator{
		cache: make(map[string][]byte),
	}
}

// Name returns the evaluator identifier.
func (e *LuaEvaluator) Name() string {
	return "lua"
}

// Evaluate runs the expression in a fresh sandboxed Lua state.
func (e *LuaEvaluator) Evaluate(_ context.Context, expression string, vars map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty lua expression")
	}

	code, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	L := newSandbox()
	for name, v := range vars {
		goToLua(L, v)
		L.SetGlobal(name)
	}

	if err := L.Load(bytes.NewReader(code), "expression", "b"); err != nil {
		return nil, evalError("lua", expression, err)
	}
	if err := L.ProtectedCall(0, 1, 0); err != nil {
		return nil, evalError("lua", expression, err)
	}
	return luaToGo(L, -1), nil
}

func (e *LuaEvaluator) getOrCompile(expression string) ([]byte, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	L := newSandbox()
	if err := lua.LoadString(L, "return "+expression); err != nil {
		L.SetTop(0)
		if err := lua.LoadString(L, expression); err != nil {
			return nil, compileError("lua", expression, err)
		}
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, compileError("lua", expression, err)
	}

	e.cache[expression] = buf.Bytes()
	return buf.Bytes(), nil
}

func newSandbox() *lua.State {
	L := lua.NewState()
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(-2, name)
	}
	L.Pop(1)
	return L
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	default:
		return nil
	}
}

var _ Evaluator = (*LuaEvaluator)(nil)
