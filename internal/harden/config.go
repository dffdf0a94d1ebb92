package harden

// DuplicationMode selects where CheckInserter places consistency checks
// (spec §6's duplication-mode option).
type DuplicationMode string

const (
	ModeEDDI  DuplicationMode = "eddi"  // checks at every store and branch
	ModeSEDDI DuplicationMode = "seddi" // checks at branches and calls only
	ModeFDSC  DuplicationMode = "fdsc"  // checks only at multi-predecessor blocks
)

// CFCMode selects the external control-flow-checking scheme internal/cfc
// applies after the data-flow hardening core has run.
type CFCMode string

const (
	CFCNone      CFCMode = ""
	CFCSS        CFCMode = "cfcss"
	CFCRASM      CFCMode = "rasm"
	CFCInterRASM CFCMode = "inter-rasm"
)

// Config collects every option spec §6 names. The zero value is NOT a
// usable configuration: CheckAtStores/CheckAtCalls/CheckAtBranches are
// only derived from DuplicationMode by applyMode(), which NewConfig and
// SetDuplicationMode call — construct one of those instead of a bare
// &Config{}, or CheckInserter will insert no checks at all.
type Config struct {
	DuplicationMode  DuplicationMode
	AlternateMemmap  bool
	DuplicateSection string
	DebugInfo        bool
	CFCMode          CFCMode

	// CheckAtStores/CheckAtCalls/CheckAtBranches gate which synchronization
	// points CheckInserter visits; FDSCOnly additionally restricts those to
	// multi-predecessor blocks (§4.6). applyMode overwrites all four from
	// DuplicationMode whenever NewConfig or SetDuplicationMode runs.
	CheckAtStores   bool
	CheckAtCalls    bool
	CheckAtBranches bool
	FDSCOnly        bool
}

// NewConfig returns the conservative default configuration: eddi mode,
// segregated (non-interleaved) memory map, duplicate section ".dup",
// debug info carried over, no CFC pass.
func NewConfig() *Config {
	c := &Config{
		DuplicationMode:  ModeEDDI,
		DuplicateSection: ".dup",
		DebugInfo:        true,
	}
	c.applyMode()
	return c
}

// SetDuplicationMode sets DuplicationMode and re-derives the three
// CheckInserter gates from it — the setter a caller outside the package
// (cmd/eddiharden-cli's flag handling) must use instead of assigning the
// field directly, since the gates aren't re-derived automatically.
func (c *Config) SetDuplicationMode(mode DuplicationMode) {
	c.DuplicationMode = mode
	c.applyMode()
}

// applyMode derives the three CheckInserter gates from DuplicationMode,
// the way spec §6's table describes each mode's effect. Call after
// setting DuplicationMode directly (NewConfig does this for the default).
func (c *Config) applyMode() {
	switch c.DuplicationMode {
	case ModeSEDDI:
		c.CheckAtStores, c.CheckAtCalls, c.CheckAtBranches = false, true, true
		c.FDSCOnly = false
	case ModeFDSC:
		c.CheckAtStores, c.CheckAtCalls, c.CheckAtBranches = true, true, true
		c.FDSCOnly = true
	default: // eddi
		c.CheckAtStores, c.CheckAtCalls, c.CheckAtBranches = true, false, true
		c.FDSCOnly = false
	}
}
