package models

import "strings"

// RuleConditions is the match clause of an assignment rule. Unknown JSON keys are ignored.
type RuleConditions struct {
	Tags    []string `json:"tags,omitempty"`
	Channel string   `json:"channel,omitempty"`
}

// IsEmpty reports whether the conditions constrain nothing.
func (c RuleConditions) IsEmpty() bool {
	return len(c.Tags) == 0 && c.Channel == ""
}

// Matches reports whether a conversation with the given contact tags and channel
// satisfies every condition present. Tags match on any intersection.
func (c RuleConditions) Matches(contactTags []string, channel string) bool {
	if len(c.Tags) > 0 {
		have := make(map[string]struct{}, len(contactTags))
		for _, tag := range contactTags {
			have[strings.TrimSpace(tag)] = struct{}{}
		}
		found := false
		for _, tag := range c.Tags {
			if _, ok := have[strings.TrimSpace(tag)]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Channel != "" && c.Channel != channel {
		return false
	}
	return true
}
