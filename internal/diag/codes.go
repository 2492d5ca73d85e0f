package diag

// Error/warning codes for the optimizer core: one reserved block per
// category, so new codes can be added within a category without
// renumbering neighbors.
//
// C1000-C1099: structural IR errors (CFG construction)
// C1100-C1199: undefined runtime operations encountered while folding
const (
	// CodeUndefinedLabel: a JMP/BTRUE/BFALSE/MBR target does not resolve
	// to any block; the edge is omitted and the pass carries on.
	CodeUndefinedLabel = "C1001"

	// CodeLeaderMismatch: a block's first instruction is not a LABEL
	// after normalization (invariant violation; should not occur from
	// well-behaved Build()).
	CodeLeaderMismatch = "C1002"

	// CodeDivisionByZero: DIV/REM/MOD with a known-zero right operand
	// during constant folding; the instruction is left unfolded.
	CodeDivisionByZero = "C1101"

	// CodeShiftOutOfRange: a shift/rotate amount that is not representable
	// in the operand's bit width during constant folding.
	CodeShiftOutOfRange = "C1102"
)
