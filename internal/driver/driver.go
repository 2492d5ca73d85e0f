// Package driver implements the optimizer's sole external entry point,
// DoProcedure: one procedure's instruction list in, the optimized list
// out. The outer driver (a textual-IR loader, a compiler backend, whatever
// supplies procedures) owns this call; the core owns everything
// downstream of it.
package driver

import (
	"optopt/internal/cfg"
	"optopt/internal/config"
	"optopt/internal/diag"
	"optopt/internal/ir"
	"optopt/internal/optimize"
	"optopt/internal/passmgr"
)

const (
	passEval = "eval"
	passCF   = "cf"
	passCP   = "cp"
	passDCE  = "dce"
	passCSE  = "cse"
	passLICM = "licm"
)

// DoProcedure runs the full optimization pipeline over
// list, honoring the ECE540_DISABLE_* environment toggles, and
// returns the resulting instruction list. The caller retains ownership
// of the individual instruction entries but agrees the returned list
// may differ in membership and wiring.
func DoProcedure(list *ir.List, procName string, sink *diag.Sink) *ir.List {
	t := config.Load()
	if t.DisableEval && t.DisableCF && t.DisableCP && t.DisableDCE && t.DisableCSE && t.DisableLICM {
		// No pass can run, so the list is returned as given, without the
		// synthetic labels that building a CFG would splice into it.
		return list
	}
	m := passmgr.NewManager(list, procName, sink)

	registered := registerPasses(m, t)
	wireCascades(m, registered)

	if start, ok := pickStart(registered); ok {
		m.Run(start)
	}

	return m.List
}

func registerPasses(m *passmgr.Manager, t config.Toggles) map[string]bool {
	registered := map[string]bool{}
	add := func(id string, disabled bool, fn passmgr.PassFunc) {
		if disabled {
			return
		}
		m.AddPass(id, fn)
		registered[id] = true
	}

	add(passEval, t.DisableEval, optimize.RunFullEvaluation)
	add(passCF, t.DisableCF, optimize.RunConstantFolding)
	add(passCP, t.DisableCP, optimize.RunCopyPropagation)
	add(passDCE, t.DisableDCE, optimize.RunDeadCodeElimination)
	add(passCSE, t.DisableCSE, optimize.RunCommonSubexpressionElimination)
	add(passLICM, t.DisableLICM, optimize.RunLoopInvariantCodeMotion)

	return registered
}

// wireCascades builds the pipeline's cascade graph (the on-changed,
// on-unchanged and always maps). EVAL is tried first as a cheap whole-
// procedure win; only when it can't prove anything (changed == false)
// does the classical pipeline run. Within that pipeline, CF and CP feed
// each other (each can expose opportunities for the other), DCE
// follows both unconditionally as cleanup, CSE runs once DCE has
// simplified the body and feeds its new CPYs back into CP, and LICM
// runs last, always followed by DCE (to clear the NOPed originals) and,
// when it moved anything, by CF (newly hoisted LDCs may combine or
// fold further).
func wireCascades(m *passmgr.Manager, registered map[string]bool) {
	has := func(id string) bool { return registered[id] }

	if has(passEval) && has(passCF) {
		m.CascadeIf(passEval, passCF, false)
	}

	if has(passCF) && has(passCP) {
		m.CascadeIf(passCF, passCP, true)
		m.CascadeIf(passCP, passCF, true)
	}
	if has(passCF) && has(passDCE) {
		m.Cascade(passCF, passDCE)
	}
	if has(passCP) && has(passDCE) {
		m.Cascade(passCP, passDCE)
	}
	if has(passDCE) && has(passCSE) {
		m.CascadeIf(passDCE, passCSE, true)
	}
	if has(passCSE) && has(passCP) {
		m.Cascade(passCSE, passCP)
	}
	if has(passCSE) && has(passLICM) {
		m.CascadeIf(passCSE, passLICM, true)
	}
	if has(passLICM) && has(passDCE) {
		m.Cascade(passLICM, passDCE)
	}
	if has(passLICM) && has(passCF) {
		m.CascadeIf(passLICM, passCF, true)
	}
}

// pickStart chooses the pipeline's entry pass: EVAL if present (it is
// always tried first), otherwise the earliest classical pass that
// survived the disable toggles.
func pickStart(registered map[string]bool) (string, bool) {
	for _, id := range []string{passEval, passCF, passCP, passDCE, passCSE, passLICM} {
		if registered[id] {
			return id, true
		}
	}
	return "", false
}

// CFGFor is a small convenience wrapper for callers (tests, the demo
// CLI) that want to inspect a procedure's control flow graph without
// running any optimization, mirroring passmgr.NewManager's own CFG
// construction.
func CFGFor(list *ir.List, procName string, sink *diag.Sink) *cfg.CFG {
	return cfg.Build(list, sink, procName)
}
