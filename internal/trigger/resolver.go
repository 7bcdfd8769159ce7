// Package trigger matches inbound messages against flow trigger nodes,
// deciding between reusing a live session and starting a new one.
package trigger

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/domain"
)

// SessionIndex is the narrow view of the session manager the resolver needs:
// lookups of live (active/waiting) sessions by trigger identity.
type SessionIndex interface {
	FindLive(triggerNodeID, conversationID, contactID string) (*domain.FlowSessionState, bool)
}

// Resolver implements trigger matching.
type Resolver struct {
	sessions SessionIndex
	logger   *slog.Logger
}

// NewResolver creates a resolver backed by the given session index.
func NewResolver(sessions SessionIndex, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{sessions: sessions, logger: logger}
}

// Matches decides whether the trigger node should handle the message.
// The message may be annotated as a side effect: SessionReuse when matched
// via an existing live session, MatchedKeyword on multiple_keywords matches.
func (r *Resolver) Matches(trig *domain.Node, msg *domain.InboundMessage,
	conversation *domain.Conversation, contact *domain.Contact) bool {

	var cfg domain.TriggerConfig
	if err := trig.DecodeConfig(&cfg); err != nil {
		r.logger.Warn("skipping trigger with undecodable config", "node", trig.ID, "err", err)
		return false
	}

	if !cfg.AllowsChannel(msg.Channel) {
		return false
	}

	// Session reuse: a live, non-expired session for this trigger absorbs the
	// message regardless of the stateless condition. The reuse tag tells the
	// walker to skip multi-keyword re-evaluation downstream.
	if cfg.Persistent() {
		if s, ok := r.sessions.FindLive(trig.ID, conversation.ID, contact.ID); ok && !s.Expired(time.Now()) {
			msg.SessionReuse = true
			return true
		}
	}

	if !PairingSupported(cfg.Condition, msg.Channel) {
		return false
	}

	return r.matchesCondition(cfg, msg)
}

func (r *Resolver) matchesCondition(cfg domain.TriggerConfig, msg *domain.InboundMessage) bool {
	content := strings.TrimSpace(msg.Content)

	switch cfg.Condition {
	case domain.TriggerAny:
		return true

	case domain.TriggerContains:
		if cfg.CaseSensitive {
			return strings.Contains(content, cfg.Value)
		}
		return strings.Contains(strings.ToLower(content), strings.ToLower(cfg.Value))

	case domain.TriggerExact:
		if cfg.CaseSensitive {
			return content == cfg.Value
		}
		return strings.EqualFold(content, cfg.Value)

	case domain.TriggerRegex:
		re, err := regexp.Compile(cfg.Value)
		if err != nil {
			r.logger.Warn("invalid trigger regex", "pattern", cfg.Value, "err", err)
			return false
		}
		return re.MatchString(content)

	case domain.TriggerMultipleKeywords:
		if kw, ok := MatchKeyword(cfg.Keywords, content); ok {
			msg.MatchedKeyword = kw
			return true
		}
		return false

	case domain.TriggerMedia:
		return msg.HasMedia

	case domain.TriggerEmail:
		return content != ""
	}

	return false
}

// MatchKeyword returns the first keyword (in declared order) found in the
// content, honoring per-keyword case sensitivity. Message and media nodes
// with keyword branching reuse this same matcher so that matching and
// keyword-<slug> edge selection never drift apart.
func MatchKeyword(keywords []domain.TriggerKeyword, content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if kw.Keyword == "" {
			continue
		}
		if kw.CaseSensitive {
			if strings.Contains(content, kw.Keyword) {
				return kw.Keyword, true
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw.Keyword)) {
			return kw.Keyword, true
		}
	}
	return "", false
}
