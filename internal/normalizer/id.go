package normalizer

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

var contentNamespace = uuid.MustParse("b2d7c4e8-91a3-4c0f-8e6d-5f2a7b3c9d10")

// CanonicalID derives a stable product id. The first available identity
// wins: a valid GTIN, the shop's own id, the product URL slug, then a
// content hash of name, brand and size.
func CanonicalID(shop, gtin, shopID, productURL, name, brand string, size domain.ParsedSize) string {
	if g := NormalizeGTIN(gtin); g != "" {
		return shop + ":gtin:" + g
	}
	if id := strings.TrimSpace(shopID); id != "" {
		return shop + ":id:" + strings.ToLower(id)
	}
	if s := urlSlug(productURL); s != "" {
		return shop + ":url:" + s
	}

	sizeKey := ""
	if size.Confidence > 0 {
		sizeKey = fmt.Sprintf("%g%s", size.Size, size.Unit)
	}
	content := textutil.Normalize(name) + "|" + textutil.Normalize(brand) + "|" + sizeKey
	return shop + ":h:" + uuid.NewSHA1(contentNamespace, []byte(content)).String()
}

// NormalizeGTIN strips separators and returns the code when its length and
// check digit are valid, or "" otherwise
func NormalizeGTIN(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ' || c == '-':
		default:
			return ""
		}
	}
	code := b.String()
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return ""
	}
	if strings.Trim(code, "0") == "" {
		return ""
	}

	sum := 0
	body := code[:len(code)-1]
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		// weights alternate 3,1 starting from the digit next to the check digit
		if (len(body)-1-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	if check != int(code[len(code)-1]-'0') {
		return ""
	}
	return code
}

func urlSlug(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" || last == "" {
		return ""
	}
	last = strings.TrimSuffix(last, path.Ext(last))
	return textutil.Slugify(last)
}
