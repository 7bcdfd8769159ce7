package dsl

import "github.com/avdept/flowmachine/pkg/domain"

// NodeBuilder provides a fluent API for configuring one node and its
// outgoing edges.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	builder *Builder
}

// Trigger marks the node as a flow entry point with the given condition type.
func (n *NodeBuilder) Trigger(condition domain.TriggerConditionType) *NodeBuilder {
	n.node.Type = domain.NodeTrigger
	n.node.Data["condition"] = string(condition)
	return n
}

// Value sets the trigger's match value (contains, exact, regex).
func (n *NodeBuilder) Value(value string) *NodeBuilder {
	n.node.Data["value"] = value
	return n
}

// Keywords declares the keyword list of a multiple_keywords trigger or a
// keyword-branching message, in matching order.
func (n *NodeBuilder) Keywords(words ...string) *NodeBuilder {
	list := make([]map[string]any, 0, len(words))
	for _, w := range words {
		list = append(list, map[string]any{"keyword": w})
	}
	n.node.Data["keywords"] = list
	return n
}

// Channels restricts the trigger to the given channels.
func (n *NodeBuilder) Channels(channels ...domain.ChannelType) *NodeBuilder {
	n.node.Data["channels"] = channels
	return n
}

// NonPersistent disables session reuse for this trigger.
func (n *NodeBuilder) NonPersistent() *NodeBuilder {
	n.node.Data["sessionPersistence"] = false
	return n
}

// Timeout sets the trigger's session window, e.g. Timeout(30, "minutes").
func (n *NodeBuilder) Timeout(amount int, unit string) *NodeBuilder {
	n.node.Data["sessionTimeout"] = map[string]any{"amount": amount, "unit": unit}
	return n
}

// Message marks the node as an outbound text message.
func (n *NodeBuilder) Message(text string) *NodeBuilder {
	n.node.Type = domain.NodeMessage
	n.node.Data["text"] = text
	return n
}

// KeywordReplies makes a message node suspend for a reply and branch on
// keyword-<slug> handles.
func (n *NodeBuilder) KeywordReplies(words ...string) *NodeBuilder {
	n.node.Data["keywordTriggers"] = true
	return n.Keywords(words...)
}

// Media marks the node as an outbound media message.
func (n *NodeBuilder) Media(url, mediaType string) *NodeBuilder {
	n.node.Type = domain.NodeMedia
	n.node.Data["mediaUrl"] = url
	n.node.Data["mediaType"] = mediaType
	return n
}

// QuickReply marks the node as a quick-reply prompt with numbered options.
func (n *NodeBuilder) QuickReply(prompt string, options ...string) *NodeBuilder {
	return n.selection(domain.NodeQuickReply, prompt, options)
}

// Poll marks the node as a poll.
func (n *NodeBuilder) Poll(prompt string, options ...string) *NodeBuilder {
	return n.selection(domain.NodePoll, prompt, options)
}

// Buttons marks the node as interactive buttons.
func (n *NodeBuilder) Buttons(prompt string, options ...string) *NodeBuilder {
	return n.selection(domain.NodeInteractiveButtons, prompt, options)
}

// List marks the node as an interactive list.
func (n *NodeBuilder) List(prompt string, options ...string) *NodeBuilder {
	return n.selection(domain.NodeInteractiveList, prompt, options)
}

func (n *NodeBuilder) selection(t domain.NodeType, prompt string, options []string) *NodeBuilder {
	n.node.Type = t
	n.node.Data["prompt"] = prompt
	list := make([]map[string]any, 0, len(options))
	for _, o := range options {
		list = append(list, map[string]any{"label": o})
	}
	n.node.Data["options"] = list
	return n
}

// Question marks the node as a free-text question captured into variable.
func (n *NodeBuilder) Question(prompt, variable string) *NodeBuilder {
	n.node.Type = domain.NodeQuestion
	n.node.Data["prompt"] = prompt
	n.node.Data["variable"] = variable
	return n
}

// Condition marks the node as a yes/no branch on a session variable.
func (n *NodeBuilder) Condition(variable string, op domain.ConditionOperator, value any) *NodeBuilder {
	n.node.Type = domain.NodeCondition
	n.node.Data["variable"] = variable
	n.node.Data["operator"] = string(op)
	n.node.Data["value"] = value
	return n
}

// SetVariable marks the node as a variable assignment.
func (n *NodeBuilder) SetVariable(name string, value any) *NodeBuilder {
	n.node.Type = domain.NodeSetVariable
	n.node.Data["name"] = name
	n.node.Data["value"] = value
	return n
}

// Delay marks the node as a pause, e.g. Delay(5, "seconds").
func (n *NodeBuilder) Delay(amount int, unit string) *NodeBuilder {
	n.node.Type = domain.NodeDelay
	n.node.Data["amount"] = amount
	n.node.Data["unit"] = unit
	return n
}

// Webhook marks the node as an outbound HTTP call.
func (n *NodeBuilder) Webhook(method, url string) *NodeBuilder {
	n.node.Type = domain.NodeWebhook
	n.node.Data["method"] = method
	n.node.Data["url"] = url
	return n
}

// Header adds a request header to a webhook node.
func (n *NodeBuilder) Header(key, value string) *NodeBuilder {
	headers, _ := n.node.Data["headers"].(map[string]string)
	if headers == nil {
		headers = make(map[string]string)
		n.node.Data["headers"] = headers
	}
	headers[key] = value
	return n
}

// SaveResponse captures the webhook response body into a session variable.
func (n *NodeBuilder) SaveResponse(variable string) *NodeBuilder {
	n.node.Data["responseVariable"] = variable
	return n
}

// AIAssistant marks the node as an AI conversation holder.
func (n *NodeBuilder) AIAssistant(prompt string) *NodeBuilder {
	n.node.Type = domain.NodeAIAssistant
	n.node.Data["prompt"] = prompt
	return n
}

// StopKeyword sets the phrase that releases an AI assistant node.
func (n *NodeBuilder) StopKeyword(word string) *NodeBuilder {
	n.node.Data["stopKeyword"] = word
	return n
}

// Handoff marks the node as a human-handoff step.
func (n *NodeBuilder) Handoff() *NodeBuilder {
	n.node.Type = domain.NodeHandoff
	return n
}

// End marks the node as a terminal step.
func (n *NodeBuilder) End() *NodeBuilder {
	n.node.Type = domain.NodeEnd
	return n
}

// Set writes a raw Data entry, for configuration the typed helpers don't
// cover (custom executor nodes in particular).
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.node.Data[key] = value
	return n
}

// Type overrides the node type, for runtime-registered executors.
func (n *NodeBuilder) Type(t domain.NodeType) *NodeBuilder {
	n.node.Type = t
	return n
}

// Go adds an unlabelled edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Source: n.node.ID, Target: target})
	return n
}

// On adds an edge leaving through the named source handle.
func (n *NodeBuilder) On(handle, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Source: n.node.ID, Target: target, SourceHandle: handle})
	return n
}

// GoIf adds an edge gated on a session variable.
func (n *NodeBuilder) GoIf(target, variable string, op domain.ConditionOperator, value any) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{
		Source:    n.node.ID,
		Target:    target,
		Condition: &domain.EdgeCondition{Variable: variable, Operator: op, Value: value},
	})
	return n
}

// Node continues the chain on another node of the same flow.
func (n *NodeBuilder) Node(id string) *NodeBuilder {
	return n.builder.Node(id)
}

// Build compiles the whole flow.
func (n *NodeBuilder) Build() (*domain.Flow, error) {
	return n.builder.Build()
}
