package dingtalk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	t.Parallel()

	// Vector cross-checked against the reference implementation
	// (hmac-sha256 over "{ts}\n{secret}", base64, then query-escaped).
	got := Sign(1693276800000, "SECc2354d3cde7a")
	require.Equal(t, "LxiCiBc5H9G62R6rLXLTuol4kJoBZBB8Fv47IXEhTnQ%3D", got)
}

func TestVerifyInbound_Valid(t *testing.T) {
	t.Parallel()

	secret := "SECc2354d3cde7a"
	now := time.UnixMilli(1693276800000)
	sign := signBase64(now.UnixMilli(), secret)

	require.True(t, VerifyInbound(now.UnixMilli(), sign, secret, now))
}

func TestVerifyInbound_RejectsWrongSignature(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1693276800000)
	require.False(t, VerifyInbound(now.UnixMilli(), "bogus", "SECc2354d3cde7a", now))
}

func TestVerifyInbound_RejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	secret := "SECc2354d3cde7a"
	sent := time.UnixMilli(1693276800000)
	sign := signBase64(sent.UnixMilli(), secret)
	now := sent.Add(2 * time.Hour)

	require.False(t, VerifyInbound(sent.UnixMilli(), sign, secret, now))
}

func TestStripMentions(t *testing.T) {
	t.Parallel()

	in := `<at id="user123">@小助手</at> Test1 LLM 查询天气`
	require.Equal(t, " Test1 LLM 查询天气", StripMentions(in))
	require.Equal(t, "plain", StripMentions("plain"))
}
