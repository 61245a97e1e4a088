package logging

import (
	"net/url"
	"regexp"
	"strings"
)

const mask = "****"

var (
	// API キーなどを含むクエリパラメータ
	secretParamPattern = regexp.MustCompile(`(?i)([?&](?:apikey|api_key|key|token|access_token|auth_token|password)=)[^&\s"']+`)

	// DSN 内のパスワード
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)

	// Webhook URL はパス自体が認証情報
	slackWebhookPattern   = regexp.MustCompile(`(hooks\.slack\.com/services/)\S+`)
	discordWebhookPattern = regexp.MustCompile(`(discord\.com/api/webhooks/)\S+`)
)

// secretParams are query parameters whose values are masked by RedactURL.
var secretParams = map[string]bool{
	"apikey":       true,
	"api_key":      true,
	"key":          true,
	"token":        true,
	"access_token": true,
	"auth_token":   true,
	"password":     true,
}

// RedactURL masks credentials in a URL: the userinfo password and the values
// of secret query parameters. Unparsable input goes through RedactString.
//
// Example:
//
//	RedactURL("https://congress.example.org/bills?query=water&apikey=abc123")
//	// "https://congress.example.org/bills?apikey=%2A%2A%2A%2A&query=water"
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedactString(raw)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), mask)
	}
	q := u.Query()
	changed := false
	for k := range q {
		if secretParams[strings.ToLower(k)] {
			q.Set(k, mask)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactString masks credentials embedded anywhere in free text: secret query
// parameters, DSN passwords and webhook tokens.
func RedactString(msg string) string {
	msg = secretParamPattern.ReplaceAllString(msg, "${1}"+mask)
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://${1}:"+mask+"@")
	msg = slackWebhookPattern.ReplaceAllString(msg, "${1}"+mask)
	msg = discordWebhookPattern.ReplaceAllString(msg, "${1}"+mask)
	return msg
}

// RedactError returns the error message with credentials masked, or "" for nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return RedactString(err.Error())
}
