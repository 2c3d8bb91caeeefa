package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// contributionFn is the global function name an income script must define.
const contributionFn = "contribution"

// IncomeScript wraps a sandboxed Lua VM holding a per-asset income formula.
// A script must define `contribution(population) -> amount`.
//
// The LState is single-threaded; the mutex serializes concurrent calls.
type IncomeScript struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	logger    *zap.Logger
}

// LoadIncomeScripts creates a sandboxed VM and executes every *.lua file in
// dir in lexicographic order, then verifies that a contribution function was
// defined.
//
// Precondition: dir must be a readable directory containing at least one
// script that defines contribution; logger must be non-nil.
// Postcondition: Returns a ready IncomeScript or a non-nil error.
func LoadIncomeScripts(dir string, instLimit int, logger *zap.Logger) (*IncomeScript, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading script directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .lua files in %s", dir)
	}
	sort.Strings(files)

	L := NewSandboxedState(instLimit)
	for _, path := range files {
		if err := L.DoFile(path); err != nil {
			L.Close()
			return nil, fmt.Errorf("executing income script %s: %w", path, err)
		}
		logger.Info("loaded income script", zap.String("path", path))
	}

	if L.GetGlobal(contributionFn).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("income scripts in %s define no %s function", dir, contributionFn)
	}

	return &IncomeScript{state: L, instLimit: instLimit, logger: logger}, nil
}

// Contribution evaluates the scripted per-asset income for a region with the
// given population.
//
// Precondition: the script's contribution function must return a number.
// Postcondition: Returns the computed amount or a non-nil error; the VM is
// left reusable either way.
func (s *IncomeScript) Contribution(population int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return 0, fmt.Errorf("income script is closed")
	}

	ResetInstructionBudget(s.state, s.instLimit)

	fn := s.state.GetGlobal(contributionFn)
	if fn.Type() != lua.LTFunction {
		return 0, fmt.Errorf("%s is not a function", contributionFn)
	}

	err := s.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(population))
	if err != nil {
		return 0, fmt.Errorf("calling %s(%d): %w", contributionFn, population, err)
	}

	ret := s.state.Get(-1)
	s.state.Pop(1)

	num, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%s returned %s, want number", contributionFn, ret.Type())
	}
	return int64(num), nil
}

// Close releases the underlying Lua VM.
//
// Postcondition: The script is no longer usable after calling Close.
func (s *IncomeScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		s.state.Close()
		s.state = nil
	}
}
