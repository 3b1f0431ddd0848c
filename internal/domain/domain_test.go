package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberStatusTransitions(t *testing.T) {
	pending := SubscriberStatusPendingConfirmation
	confirmed := SubscriberStatusConfirmed

	assert.True(t, pending.CanTransitionTo(confirmed))
	assert.True(t, confirmed.CanTransitionTo(confirmed))
	assert.False(t, confirmed.CanTransitionTo(pending))
	assert.False(t, SubscriberStatus("deleted").CanTransitionTo(confirmed))
}

func TestParseSubscriberName(t *testing.T) {
	name, err := ParseSubscriberName("  Ursula Le Guin ")
	require.NoError(t, err)
	assert.Equal(t, "Ursula Le Guin", name)

	cases := map[string]string{
		"empty":      "",
		"whitespace": "   ",
		"too long":   strings.Repeat("a", 257),
		"slash":      "ursula/le guin",
		"brace":      "ursula{",
		"angle":      "<script>",
	}
	for label, input := range cases {
		_, err := ParseSubscriberName(input)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, label)
		assert.Equal(t, "name", verr.Field, label)
	}

	_, err = ParseSubscriberName(strings.Repeat("ё", 256))
	assert.NoError(t, err, "length is counted in characters, not bytes")
}

func TestParseSubscriberEmail(t *testing.T) {
	email, err := ParseSubscriberEmail("ursula_le_guin@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "ursula_le_guin@gmail.com", email)

	for _, input := range []string{"", "ursula.com", "@domain.com", "Ursula <ursula@gmail.com>"} {
		_, err := ParseSubscriberEmail(input)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, input)
		assert.Equal(t, "email", verr.Field)
	}
}

func TestNewPendingSubscriber(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sub, err := NewPendingSubscriber("s1", "le guin", "ursula_le_guin@gmail.com", now)
	require.NoError(t, err)
	assert.Equal(t, SubscriberStatusPendingConfirmation, sub.Status)
	assert.Equal(t, now, sub.SubscribedAt)

	_, err = NewPendingSubscriber("s2", "le guin", "not-an-email", now)
	assert.Error(t, err)
}

func TestNewsletterValidate(t *testing.T) {
	valid := Newsletter{Title: "N", Content: NewsletterContent{Text: "t", HTML: "<p>t</p>"}}
	require.NoError(t, valid.Validate())
	require.NoError(t, Newsletter{Title: "N", Content: NewsletterContent{HTML: "<p>t</p>"}}.Validate())
	require.NoError(t, Newsletter{Title: "N", Content: NewsletterContent{Text: "t"}}.Validate())
	require.NoError(t, Newsletter{Title: "  ", Content: valid.Content}.Validate())

	tests := []struct {
		name  string
		n     Newsletter
		field string
	}{
		{"missing title", Newsletter{Content: valid.Content}, "title"},
		{"empty title, empty bodies", Newsletter{}, "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			require.ErrorAs(t, tt.n.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewsletterFingerprint(t *testing.T) {
	a := Newsletter{Title: "N", Content: NewsletterContent{Text: "t", HTML: "<p>t</p>"}}
	b := a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Content.Text = "other"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// field boundaries are part of the digest
	c := Newsletter{Title: "ab", Content: NewsletterContent{Text: "c", HTML: "d"}}
	d := Newsletter{Title: "a", Content: NewsletterContent{Text: "bc", HTML: "d"}}
	assert.NotEqual(t, c.Fingerprint(), d.Fingerprint())
}
