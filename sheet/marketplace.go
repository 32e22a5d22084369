package sheet

import (
	"sort"
	"strings"
)

// DefaultMarketplace is used when no marketplace is configured.
const DefaultMarketplace = "de"

// Marketplaces maps a storefront code to its domain.
var Marketplaces = map[string]string{
	"de":  "amazon.de",
	"es":  "amazon.es",
	"com": "amazon.com",
	"us":  "amazon.com",
	"uk":  "amazon.co.uk",
	"fr":  "amazon.fr",
	"it":  "amazon.it",
	"nl":  "amazon.nl",
	"ca":  "amazon.ca",
	"mx":  "amazon.com.mx",
	"jp":  "amazon.co.jp",
	"in":  "amazon.in",
	"au":  "amazon.com.au",
	"br":  "amazon.com.br",
	"se":  "amazon.se",
	"pl":  "amazon.pl",
}

// LookupMarketplace resolves a code ("de") or a domain ("amazon.de",
// "www.amazon.de") to the storefront domain. An empty value resolves to
// the default marketplace.
func LookupMarketplace(v string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(v))
	if key == "" {
		key = DefaultMarketplace
	}
	if domain, ok := Marketplaces[key]; ok {
		return domain, true
	}
	key = strings.TrimPrefix(key, "www.")
	for _, domain := range Marketplaces {
		if domain == key {
			return domain, true
		}
	}
	return "", false
}

// MarketplaceCodes lists the accepted codes, sorted.
func MarketplaceCodes() []string {
	codes := make([]string, 0, len(Marketplaces))
	for code := range Marketplaces {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ASINURL builds the product page URL of an ASIN on a storefront domain.
func ASINURL(asin, domain string) string {
	return "https://www." + domain + "/dp/" + strings.TrimSpace(asin)
}
