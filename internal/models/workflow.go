package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWorkflow is wrapped by every trigger or action validation failure.
var ErrInvalidWorkflow = errors.New("invalid workflow definition")

type TriggerType string

const (
	TriggerNewMessage      TriggerType = "new_message"
	TriggerKeywordMatch    TriggerType = "keyword_match"
	TriggerNewConversation TriggerType = "new_conversation"
)

type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Trigger decides whether a workflow fires for an inbound message.
// Keywords and MatchMode are only meaningful for keyword_match.
type Trigger struct {
	Type      TriggerType
	Keywords  []string
	MatchMode MatchMode
}

type triggerConfig struct {
	Keywords  []string  `json:"keywords,omitempty"`
	MatchMode MatchMode `json:"matchMode,omitempty"`
}

type triggerWire struct {
	Type   TriggerType   `json:"type"`
	Config triggerConfig `json:"config"`
}

func (t Trigger) MarshalJSON() ([]byte, error) {
	w := triggerWire{Type: t.Type}
	if t.Type == TriggerKeywordMatch {
		w.Config = triggerConfig{Keywords: t.Keywords, MatchMode: t.MatchMode}
	}
	return json.Marshal(w)
}

func (t *Trigger) UnmarshalJSON(data []byte) error {
	var w triggerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: trigger: %v", ErrInvalidWorkflow, err)
	}
	switch w.Type {
	case TriggerNewMessage, TriggerNewConversation:
		*t = Trigger{Type: w.Type}
	case TriggerKeywordMatch:
		*t = Trigger{Type: w.Type, Keywords: w.Config.Keywords, MatchMode: w.Config.MatchMode}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidWorkflow, w.Type)
	}
	return nil
}

// Validate checks the trigger's configuration.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerNewMessage, TriggerNewConversation:
		return nil
	case TriggerKeywordMatch:
		if t.MatchMode != "" && t.MatchMode != MatchAny && t.MatchMode != MatchAll {
			return fmt.Errorf("%w: unknown match mode %q", ErrInvalidWorkflow, t.MatchMode)
		}
		for _, kw := range t.Keywords {
			if strings.TrimSpace(kw) != "" {
				return nil
			}
		}
		return fmt.Errorf("%w: keyword_match requires at least one keyword", ErrInvalidWorkflow)
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidWorkflow, t.Type)
	}
}

// Matches evaluates the trigger against a message body. Keyword matching is a
// case-insensitive substring test.
func (t Trigger) Matches(body string, isFirstMessage bool) bool {
	switch t.Type {
	case TriggerNewMessage:
		return true
	case TriggerNewConversation:
		return isFirstMessage
	case TriggerKeywordMatch:
		text := strings.ToLower(body)
		var keywords []string
		for _, kw := range t.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return false
		}
		if t.MatchMode == MatchAll {
			for _, kw := range keywords {
				if !strings.Contains(text, kw) {
					return false
				}
			}
			return true
		}
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type ActionType string

const (
	ActionSendReply        ActionType = "send_reply"
	ActionChangeLeadStatus ActionType = "change_lead_status"
	ActionAssignAgent      ActionType = "assign_agent"
	ActionAddNote          ActionType = "add_note"
	ActionDelay            ActionType = "delay"
)

// Action is one step of a workflow. Which field is read depends on Type:
// send_reply uses Body, change_lead_status uses Status, assign_agent uses AgentID,
// add_note uses Content, delay uses Seconds.
type Action struct {
	Type    ActionType
	Body    string
	Status  string
	AgentID string
	Content string
	Seconds int
}

type actionConfig struct {
	Body    string `json:"body,omitempty"`
	Status  string `json:"status,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	Content string `json:"content,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

type actionWire struct {
	Type   ActionType   `json:"type"`
	Config actionConfig `json:"config"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	w := actionWire{Type: a.Type}
	switch a.Type {
	case ActionSendReply:
		w.Config.Body = a.Body
	case ActionChangeLeadStatus:
		w.Config.Status = a.Status
	case ActionAssignAgent:
		w.Config.AgentID = a.AgentID
	case ActionAddNote:
		w.Config.Content = a.Content
	case ActionDelay:
		w.Config.Seconds = a.Seconds
	}
	return json.Marshal(w)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: action: %v", ErrInvalidWorkflow, err)
	}
	next := Action{Type: w.Type}
	switch w.Type {
	case ActionSendReply:
		next.Body = w.Config.Body
	case ActionChangeLeadStatus:
		next.Status = w.Config.Status
	case ActionAssignAgent:
		next.AgentID = w.Config.AgentID
	case ActionAddNote:
		next.Content = w.Config.Content
	case ActionDelay:
		next.Seconds = w.Config.Seconds
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidWorkflow, w.Type)
	}
	*a = next
	return nil
}

// Validate checks the action's configuration. Empty payloads are allowed and
// turn the action into a no-op at run time.
func (a Action) Validate() error {
	switch a.Type {
	case ActionSendReply, ActionChangeLeadStatus, ActionAssignAgent, ActionAddNote:
		return nil
	case ActionDelay:
		if a.Seconds < 0 {
			return fmt.Errorf("%w: delay seconds must not be negative", ErrInvalidWorkflow)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidWorkflow, a.Type)
	}
}

// DelaySeconds is the effective wait of a delay action, never less than one second.
func (a Action) DelaySeconds() int {
	if a.Seconds < 1 {
		return 1
	}
	return a.Seconds
}

// ValidateActions validates every action, reporting the index of the first bad one.
func ValidateActions(actions []Action) error {
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}
