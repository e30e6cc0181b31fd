package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of canonical keyed by secret
func Sign(secret, canonical string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// ShopeeBaseString builds the canonical string for a Shopee v2 call:
// partner_id + path + timestamp, followed by access_token + shop_id for
// shop-scoped endpoints. Pass empty accessToken and shopID for public ones.
func ShopeeBaseString(partnerID, path string, timestamp int64, accessToken, shopID string) string {
	var builder strings.Builder
	builder.WriteString(partnerID)
	builder.WriteString(path)
	builder.WriteString(strconv.FormatInt(timestamp, 10))
	if accessToken != "" || shopID != "" {
		builder.WriteString(accessToken)
		builder.WriteString(shopID)
	}
	return builder.String()
}

// ShopeeSignature signs a Shopee call with the partner key
func ShopeeSignature(partnerKey, partnerID, path string, timestamp int64, accessToken, shopID string) string {
	return Sign(partnerKey, ShopeeBaseString(partnerID, path, timestamp, accessToken, shopID))
}
