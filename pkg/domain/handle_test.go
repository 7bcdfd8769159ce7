package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avdept/flowmachine/pkg/domain"
)

func TestHandleSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Order Status", "order-status"},
		{"order  status", "order-status"},
		{"  Pricing\t Info ", "pricing-info"},
		{"HELP", "help"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, domain.HandleSlug(tc.in), "slug of %q", tc.in)
	}
}

func TestKeywordHandle(t *testing.T) {
	assert.Equal(t, "keyword-order-status", domain.KeywordHandle("Order  Status"))
	assert.Equal(t, "keyword-help", domain.KeywordHandle("help"))
}

func TestOptionHandle(t *testing.T) {
	// Option handles are 1-based even though indices are 0-based.
	assert.Equal(t, "option-1", domain.OptionHandle(0))
	assert.Equal(t, "option-3", domain.OptionHandle(2))
}

func TestBranchHandleFamilies(t *testing.T) {
	for _, h := range []string{"yes", "TRUE", "success", "Positive"} {
		assert.True(t, domain.IsPositiveHandle(h), h)
		assert.True(t, domain.IsBranchHandle(h), h)
	}
	for _, h := range []string{"no", "False", "failure", "NEGATIVE"} {
		assert.True(t, domain.IsNegativeHandle(h), h)
		assert.True(t, domain.IsBranchHandle(h), h)
	}
	for _, h := range []string{"", "option-1", "keyword-help", "maybe"} {
		assert.False(t, domain.IsBranchHandle(h), h)
	}
}
