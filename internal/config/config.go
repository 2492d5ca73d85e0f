// Package config reads the pass-toggle environment variables used for
// A/B testing and bisection. There is no flag-parsing framework here:
// each toggle is read straight off os.Getenv once, at pass-registry
// construction time.
package config

import "os"

// Toggles records which optimization passes are disabled for this run.
// Any non-empty value for the corresponding ECE540_DISABLE_* variable
// disables that pass.
type Toggles struct {
	DisableCF   bool
	DisableCP   bool
	DisableDCE  bool
	DisableCSE  bool
	DisableLICM bool
	DisableEval bool
}

// Load reads the toggle set from the process environment.
func Load() Toggles {
	return Toggles{
		DisableCF:   isSet("ECE540_DISABLE_CF"),
		DisableCP:   isSet("ECE540_DISABLE_CP"),
		DisableDCE:  isSet("ECE540_DISABLE_DCE"),
		DisableCSE:  isSet("ECE540_DISABLE_CSE"),
		DisableLICM: isSet("ECE540_DISABLE_LICM"),
		DisableEval: isSet("ECE540_DISABLE_EVAL"),
	}
}

func isSet(name string) bool { return os.Getenv(name) != "" }
