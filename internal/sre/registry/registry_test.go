package registry

import "testing"

func sampleCommands() []CommandMeta {
	return []CommandMeta{
		{CmdID: "uptime", Cmd: "uptime", Risk: RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "journalctl", Cmd: "journalctl -u {service}", Risk: RiskReadOnly, Platform: []string{"linux"}},
		{CmdID: "jstack", Cmd: "jstack {pid}", Risk: RiskLow, Platform: []string{"any"}},
	}
}

func TestGetUnknownCommand(t *testing.T) {
	reg, err := New(sampleCommands())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Fatal("expected error for unknown cmd_id")
	} else if _, ok := err.(*ErrUnknownCommand); !ok {
		t.Fatalf("expected *ErrUnknownCommand, got %T", err)
	}
}

func TestRenderRequiresParameters(t *testing.T) {
	reg, _ := New(sampleCommands())

	meta, _ := reg.Get("journalctl")
	if _, err := Render(meta, "", ""); err == nil {
		t.Fatal("expected error when service is missing")
	}
	out, err := Render(meta, "nginx", "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "journalctl -u nginx" {
		t.Errorf("unexpected render: %q", out)
	}

	meta, _ = reg.Get("jstack")
	if _, err := Render(meta, "", ""); err == nil {
		t.Fatal("expected error when pid is missing")
	}
	out, err = Render(meta, "", "1234")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "jstack 1234" {
		t.Errorf("unexpected render: %q", out)
	}
}

func TestSupportsPlatform(t *testing.T) {
	meta := CommandMeta{Platform: []string{"linux"}}
	if meta.SupportsPlatform("darwin") {
		t.Error("expected darwin not supported")
	}
	if !meta.SupportsPlatform("linux") {
		t.Error("expected linux supported")
	}

	anyMeta := CommandMeta{Platform: []string{"any"}}
	if !anyMeta.SupportsPlatform("darwin") {
		t.Error("expected any to support every platform")
	}
}
