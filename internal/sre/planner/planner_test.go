package planner

import "testing"

func TestExtractJSONObjectPlain(t *testing.T) {
	obj, err := ExtractJSONObject(`{"decision": "continue", "confidence": 0.6}`)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	if obj["decision"] != "continue" {
		t.Errorf("expected decision=continue, got %+v", obj)
	}
}

func TestExtractJSONObjectWrappedInProse(t *testing.T) {
	text := "Sure, here is my plan:\n\n```json\n{\"decision\": \"stop\", \"commands\": []}\n```\n\nLet me know if you need more."
	obj, err := ExtractJSONObject(text)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	if obj["decision"] != "stop" {
		t.Errorf("expected decision=stop, got %+v", obj)
	}
}

func TestExtractJSONObjectNested(t *testing.T) {
	text := `leading noise {"outer": {"inner": {"value": 1}}, "list": [1, 2, {"x": "y"}]} trailing noise`
	obj, err := ExtractJSONObject(text)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	outer, ok := obj["outer"].(map[string]any)
	if !ok {
		t.Fatalf("expected outer to be an object, got %+v", obj["outer"])
	}
	inner, ok := outer["inner"].(map[string]any)
	if !ok || inner["value"] != float64(1) {
		t.Errorf("expected nested inner.value=1, got %+v", outer)
	}
}

func TestExtractJSONObjectBraceInsideString(t *testing.T) {
	text := `{"note": "use a { brace } inside a string", "ok": true}`
	obj, err := ExtractJSONObject(text)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	if obj["ok"] != true {
		t.Errorf("expected ok=true, got %+v", obj)
	}
}

func TestExtractJSONObjectNoObjectFound(t *testing.T) {
	if _, err := ExtractJSONObject("no json here at all"); err == nil {
		t.Error("expected an error when no JSON object is present")
	}
}

func TestExtractJSONObjectMalformedFallsThrough(t *testing.T) {
	text := `{"decision": "stop", "oops":} {"decision": "continue", "confidence": 0.9}`
	obj, err := ExtractJSONObject(text)
	if err != nil {
		t.Fatalf("ExtractJSONObject: %v", err)
	}
	if obj["decision"] != "continue" {
		t.Errorf("expected the scanner to recover the later well-formed object, got %+v", obj)
	}
}
