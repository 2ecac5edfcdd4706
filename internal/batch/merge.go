package batch

import (
	"encoding/json"
	"fmt"
)

// Merge folds an ordered, non-empty sequence of payloads into one wire
// payload following the field-merge rules: persona fields (username,
// avatar_url, tts, thread_name, allowed_mentions) take the first
// non-absent value; content concatenates in arrival order with a "\n"
// separator; embeds and components concatenate, preserving element
// identity and order.
func Merge(payloads []Payload) Payload {
	var merged Payload
	var contentParts []string

	for _, p := range payloads {
		if merged.Username == nil && p.Username != nil {
			merged.Username = p.Username
		}
		if merged.AvatarURL == nil && p.AvatarURL != nil {
			merged.AvatarURL = p.AvatarURL
		}
		if merged.TTS == nil && p.TTS != nil {
			merged.TTS = p.TTS
		}
		if merged.ThreadName == nil && p.ThreadName != nil {
			merged.ThreadName = p.ThreadName
		}
		if merged.AllowedMentions == nil && p.AllowedMentions != nil {
			merged.AllowedMentions = p.AllowedMentions
		}

		if p.Content != nil {
			contentParts = append(contentParts, *p.Content)
		}

		if len(p.Embeds) > 0 {
			merged.Embeds = append(merged.Embeds, p.Embeds...)
		}
		if len(p.Components) > 0 {
			merged.Components = append(merged.Components, p.Components...)
		}
	}

	if len(contentParts) > 0 {
		content := contentParts[0]
		for _, part := range contentParts[1:] {
			content += "\n" + part
		}
		merged.Content = &content
	}

	return merged
}

// MarshalOutbound serializes a merged payload for the outbound POST.
// Absent fields are omitted rather than serialized as null. Failure
// here is a defect-class error: the caller should log it as "batch
// lost", since by this point the producers have already been
// acknowledged.
func MarshalOutbound(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("batch: marshal merged payload: %w", err)
	}
	return body, nil
}
