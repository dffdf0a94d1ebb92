package harden

import "testing"

// ============================================================================
// Default configuration
// ============================================================================

func TestNewConfigDefaultsToEDDI(t *testing.T) {
	cfg := NewConfig()
	if cfg.DuplicationMode != ModeEDDI {
		t.Errorf("expected default mode eddi, got %v", cfg.DuplicationMode)
	}
	if !cfg.CheckAtStores || cfg.CheckAtCalls || !cfg.CheckAtBranches || cfg.FDSCOnly {
		t.Errorf("unexpected gate derivation for eddi: stores=%v calls=%v branches=%v fdscOnly=%v",
			cfg.CheckAtStores, cfg.CheckAtCalls, cfg.CheckAtBranches, cfg.FDSCOnly)
	}
	if cfg.DuplicateSection != ".dup" {
		t.Errorf("expected default duplicate section .dup, got %q", cfg.DuplicateSection)
	}
	if !cfg.DebugInfo {
		t.Error("expected debug info carried over by default")
	}
}

// ============================================================================
// Per-mode gate derivation
// ============================================================================

func TestSetDuplicationModeSEDDIChecksCallsAndBranchesOnly(t *testing.T) {
	cfg := NewConfig()
	cfg.SetDuplicationMode(ModeSEDDI)
	if cfg.CheckAtStores {
		t.Error("seddi should not check at stores")
	}
	if !cfg.CheckAtCalls || !cfg.CheckAtBranches {
		t.Error("seddi should check at calls and branches")
	}
	if cfg.FDSCOnly {
		t.Error("seddi should not restrict to multi-predecessor blocks")
	}
}

func TestSetDuplicationModeFDSCRestrictsToJoinBlocks(t *testing.T) {
	cfg := NewConfig()
	cfg.SetDuplicationMode(ModeFDSC)
	if !cfg.CheckAtStores || !cfg.CheckAtCalls || !cfg.CheckAtBranches {
		t.Error("fdsc should still gate every synchronization point")
	}
	if !cfg.FDSCOnly {
		t.Error("fdsc should restrict checks to multi-predecessor blocks")
	}
}

func TestSetDuplicationModeReDerivesGatesAfterModeChange(t *testing.T) {
	cfg := NewConfig()
	cfg.SetDuplicationMode(ModeFDSC)
	cfg.SetDuplicationMode(ModeSEDDI)
	if cfg.FDSCOnly {
		t.Error("expected FDSCOnly cleared after switching away from fdsc")
	}
	if cfg.CheckAtStores {
		t.Error("expected CheckAtStores cleared after switching to seddi")
	}
}
