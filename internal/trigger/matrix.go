package trigger

import "github.com/avdept/flowmachine/pkg/domain"

// PairingSupported is the fixed condition/channel compatibility matrix.
// Media-only conditions need a media-capable channel; email conditions only
// make sense on the email channel; plain text conditions apply everywhere.
// An unsupported pairing is a non-match, not an error.
func PairingSupported(cond domain.TriggerConditionType, ch domain.ChannelType) bool {
	switch cond {
	case domain.TriggerMedia:
		return ch.SupportsMedia()
	case domain.TriggerEmail:
		return ch == domain.ChannelEmail
	case domain.TriggerAny, domain.TriggerContains, domain.TriggerExact,
		domain.TriggerRegex, domain.TriggerMultipleKeywords:
		return true
	}
	return false
}
