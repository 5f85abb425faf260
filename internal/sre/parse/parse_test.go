package parse

import "testing"

func TestParseUptimeLoadAverage(t *testing.T) {
	out := " 14:32:01 up 3 days,  2:14,  2 users,  load average: 1.25, 0.98, 0.50"
	parsed := Parse("uptime", out)
	if parsed["loadavg_1m"] != 1.25 || parsed["loadavg_5m"] != 0.98 || parsed["loadavg_15m"] != 0.50 {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParseLoadavgFile(t *testing.T) {
	out := "2.00 1.50 1.00 3/210 12345"
	parsed := Parse("loadavg", out)
	if parsed["loadavg_1m"] != 2.0 || parsed["loadavg_5m"] != 1.5 || parsed["loadavg_15m"] != 1.0 {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParseFree(t *testing.T) {
	out := "              total        used        free      shared  buff/cache   available\n" +
		"Mem:          16000        8000        2000         100        6000        7000\n" +
		"Swap:          4000           0        4000\n"
	parsed := Parse("free", out)
	if parsed["mem_available_mb"] != 7000.0 {
		t.Errorf("expected mem_available_mb=7000, got %+v", parsed)
	}
	if parsed["mem_used_mb"] != 8000.0 {
		t.Errorf("expected mem_used_mb=8000, got %+v", parsed)
	}
	if parsed["swap_used_mb"] != 0.0 {
		t.Errorf("expected swap_used_mb=0, got %+v", parsed)
	}
}

func TestParseIostat(t *testing.T) {
	out := "Linux 5.15\n\n" +
		"avg-cpu:  %user   %nice %system %iowait  %steal   %idle\n" +
		"           2.00    0.00    1.00   42.30    0.00   54.70\n"
	parsed := Parse("iostat", out)
	signals := ExtractSignals("iostat", parsed)
	if signals["iowait_pct"] != 42.3 {
		t.Errorf("expected iowait_pct=42.3, got %+v (parsed=%+v)", signals, parsed)
	}
}

func TestParseFallbackTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 600; i++ {
		long += "x"
	}
	parsed := Parse("ps_cpu", long)
	firstLine, _ := parsed["first_line"].(string)
	if len(firstLine) != 500 {
		t.Errorf("expected truncation to 500 chars, got %d", len(firstLine))
	}
}

func TestExtractSignalsMemory(t *testing.T) {
	parsed := ParsedOutput{"mem_available_mb": 150.0, "mem_used_mb": 9000.0, "swap_used_mb": 10.0}
	signals := ExtractSignals("free", parsed)
	if signals["mem_available_mb"] != 150.0 {
		t.Errorf("unexpected signals: %+v", signals)
	}
}
