package mailer

import (
	"fmt"
	"strings"
)

// MessageReceived builds the "you received an anonymous message" notification
// with the one-time reply link.
func MessageReceived(subject, content, replyLink string) (emailSubject, html, text string) {
	emailSubject = fmt.Sprintf("Someone left you an anonymous message: %s", subject)

	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #333;">
  <h2>You received an anonymous message</h2>
  <div style="background: #f8f9fa; padding: 20px; border-left: 4px solid #667eea; border-radius: 6px;">
    <h3>%s</h3>
    <p>%s</p>
  </div>
  <p>
    <a href="%s" style="background-color: #667eea; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Reply anonymously</a>
  </p>
  <p><small>The sender stays anonymous, and so do you when you reply.</small></p>
</div>`, subject, nl2br(content), replyLink)

	text = fmt.Sprintf("You received an anonymous message: %s\n\n%s\n\nReply anonymously: %s\n", subject, content, replyLink)
	return emailSubject, html, text
}

// ResponseReceived builds the "your message got a reply" notification sent to
// the contact captured at send time.
func ResponseReceived(originalSubject, responseContent string) (emailSubject, html, text string) {
	emailSubject = fmt.Sprintf("Your anonymous message got a reply: %s", originalSubject)

	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your message received a reply</h2>
  <p>Your original message: "%s"</p>
  <div style="background: #f8f9fa; padding: 20px; border-left: 4px solid #4caf50; border-radius: 6px;">
    <p>%s</p>
  </div>
</div>`, originalSubject, nl2br(responseContent))

	text = fmt.Sprintf("Your anonymous message %q got a reply:\n\n%s\n", originalSubject, responseContent)
	return emailSubject, html, text
}

func nl2br(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}
