package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "OPEN"
	StatusPending  ConversationStatus = "PENDING"
	StatusResolved ConversationStatus = "RESOLVED"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved:
		return true
	}
	return false
}

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
	MessageFailed    MessageStatus = "FAILED"
)

type UserRole string

const (
	RoleOwner UserRole = "OWNER"
	RoleAdmin UserRole = "ADMIN"
	RoleAgent UserRole = "AGENT"
)

func (r UserRole) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleAgent
}

// Elevated reports whether the role can see and manage every agent's work.
func (r UserRole) Elevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

type Availability string

const (
	AvailabilityOnline  Availability = "ONLINE"
	AvailabilityAway    Availability = "AWAY"
	AvailabilityOffline Availability = "OFFLINE"
)

func (a Availability) Valid() bool {
	return a == AvailabilityOnline || a == AvailabilityAway || a == AvailabilityOffline
}

type AssignmentStrategy string

const (
	StrategyRoundRobin AssignmentStrategy = "ROUND_ROBIN"
	StrategyManual     AssignmentStrategy = "MANUAL"
)

func (s AssignmentStrategy) Valid() bool {
	return s == StrategyRoundRobin || s == StrategyManual
}

type WorkflowLogStatus string

const (
	WorkflowLogSuccess WorkflowLogStatus = "success"
	WorkflowLogFailed  WorkflowLogStatus = "failed"
)

const (
	// ChannelWhatsApp is the only channel conversations currently arrive on.
	ChannelWhatsApp = "WHATSAPP"
	// SystemUserID authors notes written by automation.
	SystemUserID = "system"
	// DefaultMaxOpenConversations is an agent's capacity when none is configured.
	DefaultMaxOpenConversations = 5
	DefaultLeadStatusColor      = "#3b82f6"
)

// Base carries the identifier and timestamps shared by every table.
type Base struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when the caller left ID empty.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type Tenant struct {
	Base
	Name string `gorm:"type:varchar(255);not null" json:"name"`
	Slug string `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
}

func (Tenant) TableName() string { return "tenants" }

type Contact struct {
	Base
	TenantID string                      `gorm:"type:varchar(36);not null;uniqueIndex:idx_contacts_tenant_phone,priority:1" json:"tenantId"`
	Phone    string                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_contacts_tenant_phone,priority:2" json:"phone"`
	Name     *string                     `gorm:"type:varchar(255)" json:"name"`
	Email    *string                     `gorm:"type:varchar(255)" json:"email"`
	Tags     datatypes.JSONSlice[string] `json:"tags"`
}

func (Contact) TableName() string { return "contacts" }

type Conversation struct {
	Base
	TenantID        string             `gorm:"type:varchar(36);not null;index:idx_conversations_tenant_contact,priority:1" json:"tenantId"`
	ContactID       string             `gorm:"type:varchar(36);not null;index:idx_conversations_tenant_contact,priority:2" json:"contactId"`
	AssignedAgentID *string            `gorm:"type:varchar(36);index" json:"assignedAgentId"`
	Channel         string             `gorm:"type:varchar(32);not null" json:"channel"`
	Status          ConversationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	LeadStatus      *string            `gorm:"type:varchar(255);index" json:"leadStatus"`
	LastMessageAt   time.Time          `gorm:"index" json:"lastMessageAt"`

	Contact       *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	AssignedAgent *User    `gorm:"foreignKey:AssignedAgentID" json:"assignedAgent,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Message rows are append-only.
type Message struct {
	Base
	TenantID       string           `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	ConversationID string           `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	SenderID       *string          `gorm:"type:varchar(36)" json:"senderId"`
	Direction      MessageDirection `gorm:"type:varchar(16);not null" json:"direction"`
	Body           string           `gorm:"type:text;not null" json:"body"`
	ExternalID     *string          `gorm:"type:varchar(255);index" json:"externalId"`
	Status         MessageStatus    `gorm:"type:varchar(16);not null" json:"status"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Message) TableName() string { return "messages" }

type User struct {
	Base
	TenantID     string       `gorm:"type:varchar(36);not null;uniqueIndex:idx_users_tenant_email,priority:1" json:"tenantId"`
	Email        string       `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_tenant_email,priority:2" json:"email"`
	Name         string       `gorm:"type:varchar(255);not null" json:"name"`
	Role         UserRole     `gorm:"type:varchar(16);not null" json:"role"`
	Availability Availability `gorm:"type:varchar(16);not null;index" json:"availability"`
	MaxOpenConvo int          `gorm:"not null" json:"maxOpenConvo"`
}

func (User) TableName() string { return "users" }

type Team struct {
	Base
	TenantID string       `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	Name     string       `gorm:"type:varchar(255);not null" json:"name"`
	Members  []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

func (Team) TableName() string { return "teams" }

type TeamMember struct {
	Base
	TeamID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_team_members_team_user,priority:1" json:"teamId"`
	UserID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_team_members_team_user,priority:2" json:"userId"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (TeamMember) TableName() string { return "team_members" }

type AssignmentRule struct {
	Base
	TenantID   string                             `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	Name       string                             `gorm:"type:varchar(255);not null" json:"name"`
	Priority   int                                `gorm:"not null" json:"priority"`
	Strategy   AssignmentStrategy                 `gorm:"type:varchar(16);not null" json:"strategy"`
	IsActive   bool                               `gorm:"not null" json:"isActive"`
	Conditions datatypes.JSONType[RuleConditions] `json:"conditions"`
	TeamID     *string                            `gorm:"type:varchar(36)" json:"teamId"`
}

func (AssignmentRule) TableName() string { return "assignment_rules" }

type CustomLeadStatus struct {
	Base
	TenantID  string `gorm:"type:varchar(36);not null;uniqueIndex:idx_lead_statuses_tenant_name,priority:1" json:"tenantId"`
	Name      string `gorm:"type:varchar(255);not null;uniqueIndex:idx_lead_statuses_tenant_name,priority:2" json:"name"`
	Color     string `gorm:"type:varchar(16);not null" json:"color"`
	SortOrder int    `gorm:"not null" json:"sortOrder"`
	IsActive  bool   `gorm:"not null" json:"isActive"`
}

func (CustomLeadStatus) TableName() string { return "custom_lead_statuses" }

type ChatbotWorkflow struct {
	Base
	TenantID    string                      `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	Name        string                      `gorm:"type:varchar(255);not null" json:"name"`
	Description *string                     `gorm:"type:text" json:"description"`
	IsActive    bool                        `gorm:"not null" json:"isActive"`
	Trigger     datatypes.JSONType[Trigger] `gorm:"column:trigger_def" json:"trigger"`
	Actions     datatypes.JSONSlice[Action] `json:"actions"`
}

func (ChatbotWorkflow) TableName() string { return "chatbot_workflows" }

type WorkflowLog struct {
	Base
	WorkflowID     string            `gorm:"type:varchar(36);not null;index" json:"workflowId"`
	ConversationID string            `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	Status         WorkflowLogStatus `gorm:"type:varchar(16);not null" json:"status"`
	Error          *string           `gorm:"type:text" json:"error"`
	ExecutedAt     time.Time         `gorm:"index" json:"executedAt"`
}

func (WorkflowLog) TableName() string { return "workflow_logs" }

type CallLog struct {
	Base
	TenantID       string  `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	ConversationID string  `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	UserID         string  `gorm:"type:varchar(36);not null" json:"userId"`
	Notes          *string `gorm:"type:text" json:"notes"`
	Outcome        *string `gorm:"type:varchar(255)" json:"outcome"`
	Duration       *int    `json:"duration"`
	User           *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (CallLog) TableName() string { return "call_logs" }

type ConversationNote struct {
	Base
	TenantID       string `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	ConversationID string `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	UserID         string `gorm:"type:varchar(36);not null" json:"userId"`
	Content        string `gorm:"type:text;not null" json:"content"`
}

func (ConversationNote) TableName() string { return "conversation_notes" }

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Tenant{}, &Contact{}, &Conversation{}, &Message{}, &User{}, &Team{}, &TeamMember{},
		&AssignmentRule{}, &CustomLeadStatus{}, &ChatbotWorkflow{}, &WorkflowLog{},
		&CallLog{}, &ConversationNote{},
	}
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
