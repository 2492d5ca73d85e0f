// Package passmgr implements the pass manager: the owner of a
// procedure's instruction list, its CFG, and a table of lazily
// (re)computed analyses, driven by a cascade graph of registered
// passes.
package passmgr

import (
	"optopt/internal/analysis"
	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
)

// PassFunc is a pass body. Passes fetch whichever analyses they need
// directly from the Manager (Dominators, VarDef, ...); each accessor
// is itself lazy, so a pass that never calls, say, Loops() never pays
// for natural-loop discovery. No reflection-driven injection is
// needed: the static call graph inside fn already says which analyses
// it needs.
type PassFunc func(m *Manager)

// Manager owns one procedure's mutable IR plus its analysis cache
//. Freshness is tracked by generation counters: each analysis
// remembers which generation of its dependency it was built from, and
// rebuilds lazily when asked for if that generation is stale.
type Manager struct {
	List      *ir.List
	ProcName  string
	Sink      *diag.Sink
	Registers *ir.RegisterFactory

	g        *cfg.CFG
	cfgDirty bool
	cfgGen   int

	doms    *analysis.Dominators
	domsGen int // cfgGen this was built from

	ae      *analysis.AvailableExpressions
	aeDirty bool
	aeGen   int // cfgGen this was built from

	rd      *analysis.ReachingDefinitions
	rdDirty bool
	rdGen   int // cfgGen this was built from
	rdVer   int // bumped every rebuild, for Chains' dependency check

	lu      *analysis.LiveUses
	luDirty bool
	luGen   int

	chains      *analysis.Chains
	chainsDirty bool
	chainsRDVer int

	loops        []*analysis.Loop
	loopsDomsVer int

	domsVer int // bumped every doms rebuild

	changed bool

	passes      map[string]PassFunc
	onChanged   map[string][]string
	onUnchanged map[string][]string
	always      map[string][]string
}

// NewManager builds a pass manager for one procedure's instruction
// list, constructing the initial CFG.
func NewManager(list *ir.List, procName string, sink *diag.Sink) *Manager {
	m := &Manager{
		List:      list,
		ProcName:  procName,
		Sink:      sink,
		Registers: ir.NewRegisterFactory(list),

		passes:      map[string]PassFunc{},
		onChanged:   map[string][]string{},
		onUnchanged: map[string][]string{},
		always:      map[string][]string{},
	}
	m.g = cfg.Build(list, sink, procName)
	return m
}

func (m *Manager) ensureCFG() {
	if m.cfgDirty {
		m.g.Relink(m.Sink, m.ProcName)
		m.cfgDirty = false
		m.cfgGen++
	}
}

// CFG returns the current, up-to-date control flow graph.
func (m *Manager) CFG() *cfg.CFG {
	m.ensureCFG()
	return m.g
}

// Dominators returns the dominator sets, rebuilding if the CFG changed
// since the last build.
func (m *Manager) Dominators() *analysis.Dominators {
	m.ensureCFG()
	if m.doms == nil || m.domsGen != m.cfgGen {
		m.doms = analysis.BuildDominators(m.g)
		m.domsGen = m.cfgGen
		m.domsVer++
	}
	return m.doms
}

// AvailableExpressions returns the available-expressions analysis,
// rebuilding if the CFG changed or ChangedDef/ChangedUse marked it
// dirty.
func (m *Manager) AvailableExpressions() *analysis.AvailableExpressions {
	m.ensureCFG()
	if m.ae == nil || m.aeGen != m.cfgGen || m.aeDirty {
		m.ae = analysis.BuildAvailableExpressions(m.g)
		m.aeGen = m.cfgGen
		m.aeDirty = false
	}
	return m.ae
}

// VarDef returns the reaching-definitions analysis, rebuilding if the
// CFG changed or ChangedDef marked it dirty.
func (m *Manager) VarDef() *analysis.ReachingDefinitions {
	m.ensureCFG()
	if m.rd == nil || m.rdGen != m.cfgGen || m.rdDirty {
		m.rd = analysis.BuildReachingDefinitions(m.g)
		m.rdGen = m.cfgGen
		m.rdDirty = false
		m.rdVer++
	}
	return m.rd
}

// VarUse returns the live-use analysis, rebuilding if the CFG changed
// or ChangedUse marked it dirty.
func (m *Manager) VarUse() *analysis.LiveUses {
	m.ensureCFG()
	if m.lu == nil || m.luGen != m.cfgGen || m.luDirty {
		m.lu = analysis.BuildLiveUses(m.g)
		m.luGen = m.cfgGen
		m.luDirty = false
	}
	return m.lu
}

// Chains returns the UD/DU chains, rebuilding whenever VarDef's
// generation has advanced since the last build. DU is the exact
// inverse of UD, so both share the same dependency.
func (m *Manager) Chains() *analysis.Chains {
	rd := m.VarDef()
	if m.chains == nil || m.chainsRDVer != m.rdVer || m.chainsDirty {
		m.chains = analysis.BuildChains(m.g, rd)
		m.chainsRDVer = m.rdVer
		m.chainsDirty = false
	}
	return m.chains
}

// Loops returns the natural loops, rebuilding whenever Dominators'
// generation has advanced since the last build.
func (m *Manager) Loops() []*analysis.Loop {
	dom := m.Dominators()
	if m.loops == nil || m.loopsDomsVer != m.domsVer {
		m.loops = analysis.FindNaturalLoops(m.g, dom)
		m.loopsDomsVer = m.domsVer
	}
	return m.loops
}

// EnsurePreheader synthesizes l's pre-header if needed and reports the
// resulting block-structure edit via ChangedBlock.
func (m *Manager) EnsurePreheader(l *analysis.Loop) *cfg.Block {
	had := l.Preheader
	ph := analysis.EnsurePreheader(m.g, m.Sink, m.ProcName, l)
	if had == nil {
		m.ChangedBlock()
	}
	return ph
}

// ChangedDef reports that some instruction's defined register changed
// identity or value: dirties AE and var-def, sets changed.
func (m *Manager) ChangedDef() {
	m.aeDirty = true
	m.rdDirty = true
	m.changed = true
}

// ChangedUse reports that some instruction's use was rewritten:
// dirties AE, UD/DU, and var-use, sets changed.
func (m *Manager) ChangedUse() {
	m.aeDirty = true
	m.chainsDirty = true
	m.luDirty = true
	m.changed = true
}

// ChangedBlock reports that block structure changed: dirties
// the CFG (and transitively everything built on it), sets changed.
func (m *Manager) ChangedBlock() {
	m.cfgDirty = true
	m.changed = true
}

// RemovedNop reports that a NOP was unlinked from the list:
// dirties the CFG *without* setting changed, to avoid an infinite
// CFG-normalization / NOP-removal cascade.
func (m *Manager) RemovedNop() {
	m.cfgDirty = true
}

// AddPass registers a pass under id.
func (m *Manager) AddPass(id string, fn PassFunc) {
	m.passes[id] = fn
}

// CascadeIf queues second after first whenever first's observed
// changed-flag equals condition.
func (m *Manager) CascadeIf(first, second string, condition bool) {
	if condition {
		m.onChanged[first] = append(m.onChanged[first], second)
	} else {
		m.onUnchanged[first] = append(m.onUnchanged[first], second)
	}
}

// Cascade queues second after first unconditionally.
func (m *Manager) Cascade(first, second string) {
	m.always[first] = append(m.always[first], second)
}

// Run drives the work-list starting from startPass until it
// empties. Returns true iff any invoked pass observed a change. There
// is deliberately no iteration bound: a divergent cascade graph is a
// configuration bug to be fixed, not papered over.
func (m *Manager) Run(startPass string) bool {
	worklist := []string{startPass}
	anyChanged := false

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		fn, ok := m.passes[id]
		if !ok {
			continue
		}

		m.changed = false
		fn(m)
		if m.changed {
			anyChanged = true
			worklist = append(worklist, m.onChanged[id]...)
		} else {
			worklist = append(worklist, m.onUnchanged[id]...)
		}
		worklist = append(worklist, m.always[id]...)
	}
	return anyChanged
}
