// Package dingtalk implements the DingTalk custom-robot wire protocol:
// HMAC request signing, the outbound send API, and inbound webhook payloads.
package dingtalk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// Sign computes the robot send-API signature for the given millisecond
// timestamp: base64(HMAC-SHA256("{ts}\n{secret}", secret)), URL-escaped for
// use as a query parameter.
func Sign(timestampMillis int64, secret string) string {
	return url.QueryEscape(signBase64(timestampMillis, secret))
}

func signBase64(timestampMillis int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestampMillis, secret)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyInbound checks the outgoing-webhook signature DingTalk attaches to
// callbacks. The scheme matches Sign but without URL escaping, and the
// timestamp must be within one hour of now.
func VerifyInbound(timestampMillis int64, sign, secret string, now time.Time) bool {
	skew := now.UnixMilli() - timestampMillis
	if skew < 0 {
		skew = -skew
	}
	if skew > time.Hour.Milliseconds() {
		return false
	}
	expected := signBase64(timestampMillis, secret)
	return hmac.Equal([]byte(expected), []byte(sign))
}
