package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerMatches(t *testing.T) {
	anyMode := Trigger{Type: TriggerKeywordMatch, Keywords: []string{"price", "cost"}}
	allMode := Trigger{Type: TriggerKeywordMatch, Keywords: []string{"price", "cost"}, MatchMode: MatchAll}

	tests := []struct {
		name    string
		trigger Trigger
		body    string
		first   bool
		want    bool
	}{
		{"new message always fires", Trigger{Type: TriggerNewMessage}, "anything", false, true},
		{"new conversation on first message", Trigger{Type: TriggerNewConversation}, "hi", true, true},
		{"new conversation ignores follow ups", Trigger{Type: TriggerNewConversation}, "hi", false, false},
		{"any mode single keyword", anyMode, "What is the PRICE?", false, true},
		{"any mode no keyword", anyMode, "hello there", false, false},
		{"all mode needs every keyword", allMode, "What is the price?", false, false},
		{"all mode with every keyword", allMode, "Price and cost please", false, true},
		{"substring match", Trigger{Type: TriggerKeywordMatch, Keywords: []string{"help"}}, "helpdesk", false, true},
		{"blank keywords never match", Trigger{Type: TriggerKeywordMatch, Keywords: []string{" "}}, "anything", false, false},
		{"unknown type never matches", Trigger{Type: "schedule"}, "anything", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trigger.Matches(tt.body, tt.first))
		})
	}
}

func TestTriggerJSON(t *testing.T) {
	var trig Trigger
	require.NoError(t, json.Unmarshal([]byte(`{"type":"keyword_match","config":{"keywords":["a","b"],"matchMode":"all"}}`), &trig))
	assert.Equal(t, Trigger{Type: TriggerKeywordMatch, Keywords: []string{"a", "b"}, MatchMode: MatchAll}, trig)

	err := json.Unmarshal([]byte(`{"type":"cron","config":{}}`), &trig)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWorkflow)

	out, err := json.Marshal(Trigger{Type: TriggerNewMessage, Keywords: []string{"ignored"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"new_message","config":{}}`, string(out))
}

func TestTriggerValidate(t *testing.T) {
	assert.NoError(t, Trigger{Type: TriggerNewConversation}.Validate())
	assert.NoError(t, Trigger{Type: TriggerKeywordMatch, Keywords: []string{"x"}}.Validate())
	assert.ErrorIs(t, Trigger{Type: TriggerKeywordMatch}.Validate(), ErrInvalidWorkflow)
	assert.ErrorIs(t, Trigger{Type: TriggerKeywordMatch, Keywords: []string{"x"}, MatchMode: "some"}.Validate(), ErrInvalidWorkflow)
	assert.ErrorIs(t, Trigger{Type: "other"}.Validate(), ErrInvalidWorkflow)
}

func TestActionsJSON(t *testing.T) {
	raw := `[
		{"type":"send_reply","config":{"body":"Hello!"}},
		{"type":"change_lead_status","config":{"status":"Qualified"}},
		{"type":"assign_agent","config":{"agentId":"u-1"}},
		{"type":"add_note","config":{"content":"auto"}},
		{"type":"delay","config":{"seconds":3}}
	]`
	var actions []Action
	require.NoError(t, json.Unmarshal([]byte(raw), &actions))
	assert.Equal(t, []Action{
		{Type: ActionSendReply, Body: "Hello!"},
		{Type: ActionChangeLeadStatus, Status: "Qualified"},
		{Type: ActionAssignAgent, AgentID: "u-1"},
		{Type: ActionAddNote, Content: "auto"},
		{Type: ActionDelay, Seconds: 3},
	}, actions)

	out, err := json.Marshal(actions)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	err = json.Unmarshal([]byte(`[{"type":"send_email","config":{}}]`), &actions)
	assert.ErrorIs(t, err, ErrInvalidWorkflow)
}

func TestActionValidate(t *testing.T) {
	assert.NoError(t, ValidateActions([]Action{{Type: ActionSendReply}, {Type: ActionDelay}}))
	err := ValidateActions([]Action{{Type: ActionAddNote}, {Type: ActionDelay, Seconds: -1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1")

	assert.Equal(t, 1, Action{Type: ActionDelay}.DelaySeconds())
	assert.Equal(t, 7, Action{Type: ActionDelay, Seconds: 7}.DelaySeconds())
}

func TestRuleConditionsMatches(t *testing.T) {
	assert.True(t, RuleConditions{}.Matches(nil, ChannelWhatsApp))
	assert.True(t, RuleConditions{Tags: []string{"vip", "sales"}}.Matches([]string{"sales"}, ChannelWhatsApp))
	assert.False(t, RuleConditions{Tags: []string{"vip"}}.Matches([]string{"support"}, ChannelWhatsApp))
	assert.False(t, RuleConditions{Tags: []string{"vip"}}.Matches(nil, ChannelWhatsApp))
	assert.True(t, RuleConditions{Channel: ChannelWhatsApp}.Matches(nil, ChannelWhatsApp))
	assert.False(t, RuleConditions{Channel: "EMAIL"}.Matches(nil, ChannelWhatsApp))
	assert.False(t, RuleConditions{Tags: []string{"vip"}, Channel: "EMAIL"}.Matches([]string{"vip"}, ChannelWhatsApp))

	var c RuleConditions
	require.NoError(t, json.Unmarshal([]byte(`{"tags":["vip"],"priority":"high"}`), &c))
	assert.Equal(t, RuleConditions{Tags: []string{"vip"}}, c)
}
