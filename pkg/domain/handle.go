package domain

import (
	"fmt"
	"strings"
)

// Sentinel handles shared by the waiting-input matcher and the edge selector.
const (
	HandleNoMatch         = "no-match"
	HandleInvalidResponse = "invalid-response"
	HandleGoBack          = "go-back"
)

// HandleSlug normalizes a label into a handle fragment: lowercased with
// whitespace runs collapsed to single hyphens. The keyword matcher and the
// edge selector must use this one function so that a keyword authored as
// "Order  Status" and an edge handle "keyword-order-status" line up.
func HandleSlug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// KeywordHandle builds the edge handle for a matched keyword.
func KeywordHandle(keyword string) string {
	return "keyword-" + HandleSlug(keyword)
}

// OptionHandle builds the edge handle for a 1-based selection option.
func OptionHandle(index int) string {
	return fmt.Sprintf("option-%d", index+1)
}

// TaskHandle builds the edge handle for a triggered AI assistant task.
func TaskHandle(taskID string) string {
	return "task-" + HandleSlug(taskID)
}

var positiveHandles = map[string]struct{}{
	"yes": {}, "true": {}, "success": {}, "positive": {},
}

var negativeHandles = map[string]struct{}{
	"no": {}, "false": {}, "failure": {}, "negative": {},
}

// IsPositiveHandle reports whether the handle belongs to the "yes" branch
// family of a condition node.
func IsPositiveHandle(h string) bool {
	_, ok := positiveHandles[strings.ToLower(h)]
	return ok
}

// IsNegativeHandle reports whether the handle belongs to the "no" branch family.
func IsNegativeHandle(h string) bool {
	_, ok := negativeHandles[strings.ToLower(h)]
	return ok
}

// IsBranchHandle reports whether the handle belongs to either branch family.
func IsBranchHandle(h string) bool {
	return IsPositiveHandle(h) || IsNegativeHandle(h)
}
