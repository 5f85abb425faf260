package diagnose

import "testing"

func TestFilterPlanCmdsDropsUnknownDuplicateAndOutOfPool(t *testing.T) {
	allowedPool := map[string]bool{"iostat": true, "vmstat": true}
	knownCmdIDs := map[string]bool{"iostat": true, "vmstat": true, "kill9": true}
	alreadyExecuted := map[string]bool{"vmstat": true}

	proposed := []ProposedCmd{
		{CmdID: "iostat"},
		{CmdID: "vmstat"},   // already executed -> duplicate
		{CmdID: "kill9"},    // known but not in allowed pool
		{CmdID: "nonsense"}, // unknown entirely
	}

	accepted, dropped := FilterPlanCmds(proposed, allowedPool, knownCmdIDs, alreadyExecuted, 3)

	if len(accepted) != 1 || accepted[0].CmdID != "iostat" {
		t.Fatalf("expected only iostat accepted, got %+v", accepted)
	}
	reasons := map[string]FilterReason{}
	for _, d := range dropped {
		reasons[d.CmdID] = d.Reason
	}
	if reasons["vmstat"] != FilterDuplicate {
		t.Errorf("expected vmstat dropped as duplicate, got %q", reasons["vmstat"])
	}
	if reasons["kill9"] != FilterNotInPool {
		t.Errorf("expected kill9 dropped as not_in_allowed_pool, got %q", reasons["kill9"])
	}
	if reasons["nonsense"] != FilterUnknownCmd {
		t.Errorf("expected nonsense dropped as unknown_cmd_id, got %q", reasons["nonsense"])
	}
}

func TestFilterPlanCmdsTruncatesToMaxPerRound(t *testing.T) {
	allowedPool := map[string]bool{"a": true, "b": true, "c": true}
	knownCmdIDs := allowedPool
	proposed := []ProposedCmd{{CmdID: "a"}, {CmdID: "b"}, {CmdID: "c"}}

	accepted, _ := FilterPlanCmds(proposed, allowedPool, knownCmdIDs, map[string]bool{}, 2)
	if len(accepted) != 2 {
		t.Errorf("expected truncation to 2 commands, got %d: %+v", len(accepted), accepted)
	}
}
