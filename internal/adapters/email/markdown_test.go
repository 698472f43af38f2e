package email

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRender(t *testing.T) {
	tmpl := Template{
		Subject: "Booked: {{.Date}}",
		Body:    "Hi **{{.Name}}**,\nsee you at {{.Location}}.\n\n<script>x</script>",
	}
	subject, html, err := tmpl.Render(map[string]string{"Date": "2026-11-02", "Name": "Sam", "Location": "Main gym"})
	require.NoError(t, err)
	assert.Equal(t, "Booked: 2026-11-02", subject)
	assert.Contains(t, html, "<strong>Sam</strong>")
	assert.Contains(t, html, "<br")
	assert.NotContains(t, html, "<script>")
}

func TestTemplateMissingKey(t *testing.T) {
	_, _, err := Template{Subject: "{{.Nope}}", Body: "x"}.Render(map[string]string{})
	assert.Error(t, err)
}

func TestNoopSenderRecords(t *testing.T) {
	s := NewNoopSender(zerolog.Nop())
	res, err := s.Send(context.Background(), SendRequest{To: []string{"a@studio.test"}, Subject: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	require.Len(t, s.Sent(), 1)
	assert.Equal(t, "hi", s.Sent()[0].Subject)
}
