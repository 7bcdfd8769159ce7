// Package executors ships the engine-owned node executors. Integration-heavy
// node types (storefronts, calendars, AI providers) register their own
// executors through the same registry at host startup.
package executors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
	"github.com/avdept/flowmachine/pkg/registry"
)

// Builtins bundles the default executors around a channel dispatcher.
type Builtins struct {
	dispatcher ports.Dispatcher
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures Builtins.
type Option func(*Builtins)

// WithHTTPClient overrides the webhook client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Builtins) { b.httpClient = c }
}

// WithLogger configures the executors' logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builtins) { b.logger = logger }
}

// New creates the built-in executor set.
func New(dispatcher ports.Dispatcher, opts ...Option) *Builtins {
	b := &Builtins{
		dispatcher: dispatcher,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterAll wires every built-in executor into the registry.
func (b *Builtins) RegisterAll(reg *registry.Registry) {
	reg.RegisterFunc(domain.NodeTrigger, noop)
	reg.RegisterFunc(domain.NodeCondition, noop)
	reg.RegisterFunc(domain.NodeEnd, noop)
	reg.RegisterFunc(domain.NodeMessage, b.executeMessage)
	reg.RegisterFunc(domain.NodeMedia, b.executeMedia)
	reg.RegisterFunc(domain.NodeQuickReply, b.executeSelection)
	reg.RegisterFunc(domain.NodePoll, b.executeSelection)
	reg.RegisterFunc(domain.NodeInteractiveButtons, b.executeSelection)
	reg.RegisterFunc(domain.NodeInteractiveList, b.executeSelection)
	reg.RegisterFunc(domain.NodeQuestion, b.executeQuestion)
	reg.RegisterFunc(domain.NodeSetVariable, executeSetVariable)
	reg.RegisterFunc(domain.NodeDelay, executeDelay)
	reg.RegisterFunc(domain.NodeWebhook, b.executeWebhook)
	reg.RegisterFunc(domain.NodeAIAssistant, b.executeAIAssistant)
	reg.RegisterFunc(domain.NodeHandoff, b.executeHandoff)
	reg.RegisterFunc(domain.NodeBotDisable, executeBotDisable)
}

func noop(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {
	return nil
}

func (b *Builtins) executeMessage(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.MessageConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	text := Interpolate(cfg.Text, execCtx.Variables)
	if text == "" {
		return nil
	}
	return b.dispatcher.SendMessage(ctx, connection, conversation, text)
}

func (b *Builtins) executeMedia(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.MessageConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	caption := Interpolate(cfg.Text, execCtx.Variables)
	return b.dispatcher.SendMedia(ctx, connection, conversation, cfg.MediaURL, cfg.MediaType, caption)
}

// executeSelection renders the prompt plus a numbered option list. Channel
// adapters that support native buttons reformat on their side.
func (b *Builtins) executeSelection(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.SelectionConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(Interpolate(cfg.Prompt, execCtx.Variables))
	for i, opt := range cfg.Options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, opt.Label)
	}
	return b.dispatcher.SendMessage(ctx, connection, conversation, sb.String())
}

func (b *Builtins) executeQuestion(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.QuestionConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	if cfg.Prompt == "" {
		return nil
	}
	return b.dispatcher.SendMessage(ctx, connection, conversation, Interpolate(cfg.Prompt, execCtx.Variables))
}

func executeSetVariable(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.SetVariableConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("set_variable node %s has no variable name", node.ID)
	}
	value := cfg.Value
	if s, ok := value.(string); ok {
		value = Interpolate(s, execCtx.Variables)
	}
	execCtx.SetVariable(cfg.Name, value)
	return nil
}

// executeDelay blocks this conversation's chain only; independent
// conversations keep flowing.
func executeDelay(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.DelayConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	d := cfg.Duration()
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (b *Builtins) executeWebhook(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.WebhookConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, Interpolate(cfg.URL, execCtx.Variables), nil)
	if err != nil {
		return fmt.Errorf("webhook node %s: %w", node.ID, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, Interpolate(v, execCtx.Variables))
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook node %s: %w", node.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("webhook node %s: failed to read response: %w", node.ID, err)
	}
	if cfg.ResponseVariable != "" {
		execCtx.SetVariable(cfg.ResponseVariable, string(body))
		execCtx.SetVariable(cfg.ResponseVariable+"Status", resp.StatusCode)
	}
	return nil
}

// executeAIAssistant opens the handoff by sending the assistant's opening
// prompt; the conversational turns themselves run through an externally
// registered provider executor.
func (b *Builtins) executeAIAssistant(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	var cfg domain.AIAssistantConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return err
	}
	if execCtx.Session.AISessionActive {
		// Mid-handoff turn; the opening prompt already went out.
		return nil
	}
	if cfg.Prompt == "" {
		return nil
	}
	return b.dispatcher.SendMessage(ctx, connection, conversation, Interpolate(cfg.Prompt, execCtx.Variables))
}

// executeHandoff flags the conversation for a human agent. The bot goes
// silent on this flow; notifying agents is the event consumer's job.
func (b *Builtins) executeHandoff(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	execCtx.SetVariable("handoffRequested", true)
	b.logger.Info("conversation handed off", "conversation_id", conversation.ID, "node", node.ID)
	return nil
}

func executeBotDisable(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact, connection *domain.ChannelConnection) error {

	execCtx.SetVariable("botDisabled", true)
	return nil
}
