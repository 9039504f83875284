package render

import (
	"github.com/cbroglie/mustache"
)

// Message is rendered notification content ready for dispatch.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Render substitutes {{variable}} placeholders in subject/html/text against
// the given context. The context must be a whitelisted field set built by the
// caller; arbitrary record data is never passed in here.
func Render(subject, html, text string, context map[string]interface{}) (Message, error) {
	var msg Message
	var err error

	if msg.Subject, err = mustache.Render(subject, context); err != nil {
		return Message{}, err
	}
	if msg.HTML, err = mustache.Render(html, context); err != nil {
		return Message{}, err
	}
	if msg.Text, err = mustache.Render(text, context); err != nil {
		return Message{}, err
	}

	return msg, nil
}
