package merchant

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// SignatureHeader carries the callback signature: ts=<unix seconds>,v1=<hex>
const SignatureHeader = "X-Signature"

var (
	tsPattern = regexp.MustCompile(`ts=([^,]+)`)
	v1Pattern = regexp.MustCompile(`v1=([^,]+)`)
)

// SignatureHeaderValue builds the X-Signature value for a callback. The
// signature is HMAC-SHA256 of: id:<order id>;request-id:<record id>;ts:<ts>;
func SignatureHeaderValue(orderID, recordID, ts, secret string) string {
	return "ts=" + ts + ",v1=" + calculateHMAC(buildManifest(orderID, recordID, ts), secret)
}

// VerifySignature checks an X-Signature header as the merchant backend
// would.
func VerifySignature(header, orderID, recordID, secret string) bool {
	if header == "" || secret == "" {
		return false
	}

	ts, hash := parseSignatureHeader(header)
	if ts == "" || hash == "" {
		return false
	}

	expected := calculateHMAC(buildManifest(orderID, recordID, ts), secret)
	return hmac.Equal([]byte(hash), []byte(expected))
}

func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsPattern.FindStringSubmatch(header); len(m) > 1 {
		ts = m[1]
	}
	if m := v1Pattern.FindStringSubmatch(header); len(m) > 1 {
		hash = m[1]
	}
	return ts, hash
}

// buildManifest constructs the string to be signed. Empty parts are left out.
func buildManifest(orderID, recordID, ts string) string {
	var parts []string
	if orderID != "" {
		parts = append(parts, "id:"+orderID)
	}
	if recordID != "" {
		parts = append(parts, "request-id:"+recordID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}
	return strings.Join(parts, ";") + ";"
}

func calculateHMAC(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
