package batch

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestMergeContentConcatenation(t *testing.T) {
	payloads := []Payload{
		{Content: strPtr("first")},
		{Content: strPtr("second")},
		{Content: strPtr("third")},
	}

	merged := Merge(payloads)
	if merged.Content == nil {
		t.Fatalf("expected content, got nil")
	}
	if *merged.Content != "first\nsecond\nthird" {
		t.Errorf("expected %q, got %q", "first\nsecond\nthird", *merged.Content)
	}
}

func TestMergeContentAbsentWhenNoneSupplied(t *testing.T) {
	payloads := []Payload{
		{Username: strPtr("bot")},
		{AvatarURL: strPtr("http://example.com/a.png")},
	}

	merged := Merge(payloads)
	if merged.Content != nil {
		t.Errorf("expected nil content, got %q", *merged.Content)
	}
}

func TestMergePersonaFieldsFirstNonAbsentWins(t *testing.T) {
	payloads := []Payload{
		{Username: nil, TTS: boolPtr(false)},
		{Username: strPtr("first-username"), TTS: boolPtr(true)},
		{Username: strPtr("second-username")},
	}

	merged := Merge(payloads)
	if merged.Username == nil || *merged.Username != "first-username" {
		t.Errorf("expected username %q, got %v", "first-username", merged.Username)
	}
	if merged.TTS == nil || *merged.TTS != false {
		t.Errorf("expected tts false (from first payload to set it), got %v", merged.TTS)
	}
}

func TestMergeAllowedMentionsFirstNonAbsentWins(t *testing.T) {
	first := json.RawMessage(`{"parse":[]}`)
	second := json.RawMessage(`{"parse":["users"]}`)

	payloads := []Payload{
		{},
		{AllowedMentions: first},
		{AllowedMentions: second},
	}

	merged := Merge(payloads)
	if string(merged.AllowedMentions) != string(first) {
		t.Errorf("expected %s, got %s", first, merged.AllowedMentions)
	}
}

func TestMergeEmbedsConcatenatePreservingOrder(t *testing.T) {
	e1 := json.RawMessage(`{"title":"one"}`)
	e2 := json.RawMessage(`{"title":"two"}`)
	e3 := json.RawMessage(`{"title":"three"}`)

	payloads := []Payload{
		{Embeds: []json.RawMessage{e1, e2}},
		{Embeds: []json.RawMessage{e3}},
	}

	merged := Merge(payloads)
	if len(merged.Embeds) != 3 {
		t.Fatalf("expected 3 embeds, got %d", len(merged.Embeds))
	}
	want := []json.RawMessage{e1, e2, e3}
	for i, e := range want {
		if string(merged.Embeds[i]) != string(e) {
			t.Errorf("embed %d: expected %s, got %s", i, e, merged.Embeds[i])
		}
	}
}

func TestMergeComponentsConcatenate(t *testing.T) {
	c1 := json.RawMessage(`{"type":1}`)
	c2 := json.RawMessage(`{"type":2}`)

	payloads := []Payload{
		{Components: []json.RawMessage{c1}},
		{Components: []json.RawMessage{c2}},
	}

	merged := Merge(payloads)
	if len(merged.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(merged.Components))
	}
}

func TestMarshalOutboundOmitsAbsentFields(t *testing.T) {
	payload := Payload{Content: strPtr("hello")}

	body, err := MarshalOutbound(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unexpected error decoding marshaled body: %v", err)
	}

	if _, present := decoded["username"]; present {
		t.Errorf("expected username to be omitted, got %s", decoded["username"])
	}
	if _, present := decoded["content"]; !present {
		t.Errorf("expected content to be present")
	}
}
