package domain

import "time"

// TriggerConditionType is the stateless matching rule of a trigger node.
type TriggerConditionType string

const (
	TriggerAny              TriggerConditionType = "any"
	TriggerContains         TriggerConditionType = "contains"
	TriggerExact            TriggerConditionType = "exact"
	TriggerRegex            TriggerConditionType = "regex"
	TriggerMultipleKeywords TriggerConditionType = "multiple_keywords"
	TriggerMedia            TriggerConditionType = "media"
	TriggerEmail            TriggerConditionType = "email"
)

// TriggerKeyword is one entry of a multiple_keywords trigger. Keywords are
// evaluated in declared order; the first match wins.
type TriggerKeyword struct {
	Keyword       string `json:"keyword"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

// SessionTimeoutConfig is the trigger-configured session window.
type SessionTimeoutConfig struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"` // minutes, hours, days
}

// Duration converts the window to a duration; zero when unconfigured.
func (c SessionTimeoutConfig) Duration() time.Duration {
	if c.Amount <= 0 {
		return 0
	}
	switch c.Unit {
	case "minutes":
		return time.Duration(c.Amount) * time.Minute
	case "hours":
		return time.Duration(c.Amount) * time.Hour
	case "days":
		return time.Duration(c.Amount) * 24 * time.Hour
	}
	return 0
}

// TriggerConfig is the decoded Data of a trigger node.
type TriggerConfig struct {
	Channels      []ChannelType        `json:"channels,omitempty"`
	Condition     TriggerConditionType `json:"condition"`
	Value         string               `json:"value,omitempty"`
	CaseSensitive bool                 `json:"caseSensitive,omitempty"`
	Keywords      []TriggerKeyword     `json:"keywords,omitempty"`

	// SessionPersistence defaults to true: a live session for this trigger
	// absorbs subsequent messages instead of re-matching conditions.
	SessionPersistence *bool                `json:"sessionPersistence,omitempty"`
	SessionTimeout     SessionTimeoutConfig `json:"sessionTimeout,omitempty"`
}

// Persistent reports whether the trigger keeps a session across messages.
func (c TriggerConfig) Persistent() bool {
	return c.SessionPersistence == nil || *c.SessionPersistence
}

// AllowsChannel reports whether the inbound channel is in the trigger's
// declared channel set. An empty set allows every channel.
func (c TriggerConfig) AllowsChannel(ch ChannelType) bool {
	if len(c.Channels) == 0 {
		return true
	}
	for _, allowed := range c.Channels {
		if allowed == ch {
			return true
		}
	}
	return false
}

// SelectionOption is one choice of a quick-reply, poll or interactive node.
type SelectionOption struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// SelectionConfig is the decoded Data of quick_reply, poll,
// interactive_buttons and interactive_list nodes.
type SelectionConfig struct {
	Prompt  string            `json:"prompt,omitempty"`
	Options []SelectionOption `json:"options"`
}

// MessageConfig is the decoded Data of message and media nodes. When
// KeywordTriggers is enabled the node suspends for a reply and branches on
// keyword-<slug> handles.
type MessageConfig struct {
	Text            string           `json:"text,omitempty"`
	MediaURL        string           `json:"mediaUrl,omitempty"`
	MediaType       string           `json:"mediaType,omitempty"`
	KeywordTriggers bool             `json:"keywordTriggers,omitempty"`
	Keywords        []TriggerKeyword `json:"keywords,omitempty"`
}

// QuestionConfig is the decoded Data of a question node: free-text input
// captured into a session variable.
type QuestionConfig struct {
	Prompt   string `json:"prompt,omitempty"`
	Variable string `json:"variable,omitempty"`
}

// ConditionConfig is the decoded Data of a condition node.
type ConditionConfig struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
}

// Predicate exposes the node rule as an evaluable condition.
func (c ConditionConfig) Predicate() *EdgeCondition {
	return &EdgeCondition{Variable: c.Variable, Operator: c.Operator, Value: c.Value}
}

// SetVariableConfig is the decoded Data of a set_variable node.
type SetVariableConfig struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// DelayConfig is the decoded Data of a delay node.
type DelayConfig struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"` // seconds, minutes, hours
}

// Duration converts the configured delay; zero when unconfigured.
func (c DelayConfig) Duration() time.Duration {
	if c.Amount <= 0 {
		return 0
	}
	switch c.Unit {
	case "seconds":
		return time.Duration(c.Amount) * time.Second
	case "minutes":
		return time.Duration(c.Amount) * time.Minute
	case "hours":
		return time.Duration(c.Amount) * time.Hour
	}
	return 0
}

// WebhookConfig is the decoded Data of a webhook node.
type WebhookConfig struct {
	URL              string            `json:"url"`
	Method           string            `json:"method,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	ResponseVariable string            `json:"responseVariable,omitempty"`
}

// AITask is a named capability an AI assistant node may trigger; triggered
// task ids become edge handles.
type AITask struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// AIAssistantConfig is the decoded Data of an ai_assistant node.
type AIAssistantConfig struct {
	Prompt           string   `json:"prompt,omitempty"`
	StopKeyword      string   `json:"stopKeyword,omitempty"`
	ExitOutputHandle string   `json:"exitOutputHandle,omitempty"`
	Tasks            []AITask `json:"tasks,omitempty"`
	TaskExecution    bool     `json:"taskExecution,omitempty"`
}

// nodesAlwaysWaiting lists the types that unconditionally suspend for input.
var nodesAlwaysWaiting = map[NodeType]struct{}{
	NodeQuickReply:         {},
	NodePoll:               {},
	NodeInteractiveButtons: {},
	NodeInteractiveList:    {},
	NodeQuestion:           {},
}

// RequiresInput reports whether executing the node suspends the session
// until the next user message. Message and media nodes only wait when their
// keyword triggers are enabled; an AI assistant node holds the conversation
// until its stop keyword.
func (n *Node) RequiresInput() bool {
	if _, ok := nodesAlwaysWaiting[n.Type]; ok {
		return true
	}
	switch n.Type {
	case NodeMessage, NodeMedia:
		var cfg MessageConfig
		if err := n.DecodeConfig(&cfg); err != nil {
			return false
		}
		return cfg.KeywordTriggers && len(cfg.Keywords) > 0
	case NodeAIAssistant:
		return true
	}
	return false
}

// ExpectedInputType names the input contract recorded in WaitingContext.
func (n *Node) ExpectedInputType() string {
	switch n.Type {
	case NodeQuickReply, NodePoll, NodeInteractiveButtons, NodeInteractiveList:
		return "selection"
	case NodeQuestion:
		return "text"
	case NodeMessage, NodeMedia:
		return "keyword"
	case NodeAIAssistant:
		return "ai"
	}
	return "text"
}
