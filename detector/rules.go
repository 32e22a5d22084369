package detector

import (
	"fmt"

	"github.com/andybalholm/cascadia"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// PipelineVersion identifies the selector tables and stage order below.
// Bump it whenever a table row changes.
const PipelineVersion = "promo-pipeline/3"

// Rule is how a badge row decides whether it fired.
type Rule int

const (
	// RulePresence fires on a visible element, text or not.
	RulePresence Rule = iota
	// RuleText fires on a visible element with non-empty trimmed text.
	RuleText
	// RuleTextContains fires when the visible text contains one of the row's phrases.
	RuleTextContains
)

// BadgeRule is one row of the badge table.
type BadgeRule struct {
	Selector string
	Kind     models.SignalKind
	Rule     Rule
	Phrases  []string
	// Label is the whole label for presence rows and the prefix for text rows.
	Label string
}

// priceSelectors run from active selling price containers to the generic
// fallback. Every visible match of every row is harvested.
var priceSelectors = []string{
	"#corePrice_feature_div .a-price .a-offscreen",
	"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
	"#apex_desktop .a-price .a-offscreen",
	".a-price.a-text-price.a-size-medium .a-offscreen",
	".a-price .a-offscreen",
}

var couponPhrases = []string{
	"Apply coupon",
	"Aplicar cupón",
	"Coupon anwenden",
	"Appliquer le coupon",
	"Applica coupon",
	"Kortingsbon toepassen",
}

var badgeRules = []BadgeRule{
	{Selector: ".badge-text", Kind: models.SignalBadge, Rule: RuleText, Label: "Badge"},
	{Selector: "#dealBadge", Kind: models.SignalBadge, Rule: RuleText, Label: "Badge"},
	{Selector: ".a-badge-label", Kind: models.SignalBadge, Rule: RuleText, Label: "Badge"},
	{Selector: ".promo-badge", Kind: models.SignalBadge, Rule: RuleText, Label: "Badge"},

	{Selector: "#coupon-badge", Kind: models.SignalCoupon, Rule: RuleText, Label: "Coupon"},
	{Selector: ".vpc-coupon-label", Kind: models.SignalCoupon, Rule: RuleText, Label: "Coupon"},
	{Selector: "label", Kind: models.SignalCoupon, Rule: RuleTextContains, Phrases: couponPhrases, Label: "Coupon"},

	{Selector: "#lightning-deal-timer", Kind: models.SignalBadge, Rule: RuleText, Label: "Deal"},
	{Selector: ".dealPriceText", Kind: models.SignalBadge, Rule: RuleText, Label: "Deal"},

	{Selector: "#acBadge_feature_div", Kind: models.SignalAmazonsChoice, Rule: RulePresence, Label: "Amazon's Choice"},
	{Selector: ".ac-badge-wrapper", Kind: models.SignalAmazonsChoice, Rule: RulePresence, Label: "Amazon's Choice"},
	{Selector: ".ac-keyword-link", Kind: models.SignalAmazonsChoice, Rule: RuleText, Label: "Amazon's Choice"},
	{Selector: "#bestSellerBadge_feature_div", Kind: models.SignalBestSeller, Rule: RulePresence, Label: "Best Seller"},
	{Selector: ".zg-badge-body", Kind: models.SignalBestSeller, Rule: RuleText, Label: "Best Seller"},
}

// savingsSelectors are scanned before genericDiscountSelectors; both feed
// the same shortest-match search.
var savingsSelectors = []string{
	".savingsPercentage",
	".a-size-large.a-color-price.savingPriceOverride",
	"span[class*='savingsPercentage']",
}

var genericDiscountSelectors = []string{
	"#corePriceDisplay_desktop_feature_div span",
	"#corePrice_feature_div span",
	"#apex_desktop span",
	"#dealBadge span",
	".a-badge-text",
}

// discountKeywords mark a percentage as a reduction when no minus sign is present.
var discountKeywords = []string{
	"off", "save", "descuento", "dto", "ahorra", "rabatt", "spare",
	"réduction", "remise", "sconto", "risparmi",
}

// minusSigns covers hyphen-minus, the minus sign and the en dash.
var minusSigns = []string{"-", "−", "–"}

// primaryPriceBlocks are tried in order; the first present one is the
// strike-through search scope.
var primaryPriceBlocks = []string{
	"#corePrice_feature_div",
	"#corePriceDisplay_desktop_feature_div",
	"#apex_desktop",
}

var strikeSelectors = []string{
	`.a-text-price[data-a-strike="true"] .a-offscreen`,
	`.a-text-price[data-a-strike="true"] span[aria-hidden="true"]`,
}

var secondaryPriceSelectors = []string{
	".a-text-price .a-offscreen",
	".a-text-price span[aria-hidden='true']",
}

// captchaSignatures are matched case-insensitively against the page title.
var captchaSignatures = []string{
	"captcha",
	"robot check",
	"verify you are human",
}

const noPromoDetails = "no badges or visible discounts detected"

// ValidateSelectors compiles every selector of every table and reports the
// first one that does not parse.
func ValidateSelectors() error {
	tables := [][]string{
		priceSelectors,
		savingsSelectors,
		genericDiscountSelectors,
		primaryPriceBlocks,
		strikeSelectors,
		secondaryPriceSelectors,
	}
	for _, r := range badgeRules {
		tables = append(tables, []string{r.Selector})
	}
	for _, table := range tables {
		for _, sel := range table {
			if _, err := cascadia.ParseGroup(sel); err != nil {
				return fmt.Errorf("detector: invalid selector %q: %w", sel, err)
			}
		}
	}
	return nil
}
