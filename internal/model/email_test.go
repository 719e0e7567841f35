package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailHasLabel(t *testing.T) {
	e := Email{Labels: []string{"INBOX", "UNREAD"}}
	assert.True(t, e.HasLabel("UNREAD"))
	assert.False(t, e.HasLabel("unread"))
	assert.False(t, Email{}.HasLabel("INBOX"))
}
