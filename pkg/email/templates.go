package email

import (
	"fmt"
	"html"
)

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="margin: 0; padding: 40px 0; font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <table role="presentation" style="width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px;">
    <tr><td style="padding: 32px 30px; background-color: #0F172A; border-radius: 8px 8px 0 0;">
      <h1 style="margin: 0; color: #ffffff; font-size: 24px;">%s</h1>
    </td></tr>
    <tr><td style="padding: 32px 30px; font-size: 16px; line-height: 24px; color: #333333;">%s</td></tr>
    <tr><td style="padding: 20px; text-align: center; font-size: 12px; color: #999999;">AI Sentinel</td></tr>
  </table>
</body>
</html>`

// VerificationEmailTemplate generates HTML for email verification
func VerificationEmailTemplate(verificationURL string) string {
	body := fmt.Sprintf(`<p>Confirm your email address to finish signing in.</p>
<p><a href="%s" style="display: inline-block; padding: 12px 32px; background-color: #2563EB; color: #ffffff; text-decoration: none; border-radius: 6px;">Verify email</a></p>
<p style="font-size: 14px; color: #666666;">If you did not request this, ignore this message. The link expires in 24 hours.</p>`,
		html.EscapeString(verificationURL))
	return fmt.Sprintf(layout, "Verify your email", "Verify your email", body)
}

// SignInNoticeTemplate generates HTML for the new-session notice
func SignInNoticeTemplate(address, userAgent string) string {
	if userAgent == "" {
		userAgent = "an unknown device"
	}
	body := fmt.Sprintf(`<p>A new session was opened for <strong>%s</strong> from %s.</p>
<p style="font-size: 14px; color: #666666;">If this was not you, sign out of all sessions from the account menu.</p>`,
		html.EscapeString(address), html.EscapeString(userAgent))
	return fmt.Sprintf(layout, "New sign-in", "New sign-in", body)
}
