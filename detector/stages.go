package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/pricing"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
)

type labelSource int

const (
	labelNone labelSource = iota
	labelComputed
	labelExplicit
)

// pageCheck accumulates what the stages find on one page. Stages only add.
type pageCheck struct {
	cfg  config.DetectorConfig
	page renderer.Page

	title      string
	candidates []models.PriceReading // distinct values, first seen order
	current    *models.PriceReading
	normal     *models.PriceReading

	discount       string
	discountSource labelSource

	signals []models.PromoSignal
	seen    map[models.PromoSignal]struct{}
}

func newPageCheck(cfg config.DetectorConfig, page renderer.Page) *pageCheck {
	return &pageCheck{
		cfg:  cfg,
		page: page,
		seen: make(map[models.PromoSignal]struct{}),
	}
}

// run executes stages 2 to 7. Navigation already succeeded.
func (c *pageCheck) run(ctx context.Context, d *Detector) error {
	if err := c.botCheckGate(ctx, d); err != nil {
		return err
	}
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"harvest prices", c.harvestPrices},
		{"resolve prices", c.resolvePrices},
		{"scan badges", c.scanBadges},
		{"explicit discount", c.explicitDiscount},
		{"strike price", c.strikePrice},
	}
	for _, s := range stages {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *pageCheck) addSignal(kind models.SignalKind, label string) {
	sig := models.PromoSignal{Kind: kind, Label: label}
	if _, dup := c.seen[sig]; dup {
		return
	}
	c.seen[sig] = struct{}{}
	c.signals = append(c.signals, sig)
}

// botCheckGate is stage 2: a human-like dwell, then the title check.
func (c *pageCheck) botCheckGate(ctx context.Context, d *Detector) error {
	if err := d.sleep(ctx, d.jitter(c.cfg.DwellMin, c.cfg.DwellMax)); err != nil {
		return err
	}
	title, err := c.page.Title(ctx)
	if err != nil {
		return fmt.Errorf("read title: %w", err)
	}
	c.title = title
	if isBotCheckTitle(title) {
		return errBotCheck
	}
	return nil
}

// harvestPrices is stage 3: every visible match of every price selector.
func (c *pageCheck) harvestPrices(ctx context.Context) error {
	byValue := make(map[float64]struct{})
	for _, sel := range priceSelectors {
		texts, err := c.visibleTexts(ctx, sel)
		if err != nil {
			return err
		}
		for _, text := range texts {
			r, ok := pricing.NewReading(text, sel)
			if !ok {
				continue
			}
			if _, dup := byValue[r.Value]; dup {
				continue
			}
			byValue[r.Value] = struct{}{}
			c.candidates = append(c.candidates, r)
		}
	}
	return nil
}

// resolvePrices is stage 4: lowest is current; highest is a normal price
// candidate when it clears the margin.
func (c *pageCheck) resolvePrices(context.Context) error {
	if len(c.candidates) == 0 {
		return nil
	}
	lowest, highest := c.candidates[0], c.candidates[0]
	for _, r := range c.candidates[1:] {
		if r.Value < lowest.Value {
			lowest = r
		}
		if r.Value > highest.Value {
			highest = r
		}
	}
	c.current = &lowest

	if len(c.candidates) < 2 || !pricing.Exceeds(highest.Value, lowest.Value, c.cfg.PriceMargin) {
		return nil
	}
	c.normal = &highest
	c.discount = pricing.DiscountLabel(highest.Value, lowest.Value)
	c.discountSource = labelComputed
	c.addSignal(models.SignalPriceDropComputed, "Computed discount: "+c.discount)
	return nil
}

// scanBadges is stage 5: one generic routine over the badge table.
func (c *pageCheck) scanBadges(ctx context.Context) error {
	for _, rule := range badgeRules {
		els, err := c.page.QueryAll(ctx, rule.Selector)
		if err != nil {
			return err
		}
		for _, el := range els {
			visible, err := el.Visible()
			if err != nil {
				return err
			}
			if !visible {
				continue
			}
			if rule.Rule == RulePresence {
				c.addSignal(rule.Kind, rule.Label)
				continue
			}
			raw, err := el.Text()
			if err != nil {
				return err
			}
			text := cleanText(raw)
			if text == "" {
				continue
			}
			if rule.Rule == RuleTextContains && !containsFold(text, rule.Phrases) {
				continue
			}
			c.addSignal(rule.Kind, rule.Label+": "+truncate(text, c.cfg.BadgeLabelMax))
		}
	}
	return nil
}

// explicitDiscount is stage 6: the shortest visible "-N%" style text wins
// and overrides the computed label.
func (c *pageCheck) explicitDiscount(ctx context.Context) error {
	best := ""
	for _, table := range [][]string{savingsSelectors, genericDiscountSelectors} {
		for _, sel := range table {
			texts, err := c.visibleTexts(ctx, sel)
			if err != nil {
				return err
			}
			for _, raw := range texts {
				text := cleanText(raw)
				if !looksLikeDiscount(text, c.cfg.DiscountTextMax) {
					continue
				}
				if best == "" || utf8.RuneCountInString(text) < utf8.RuneCountInString(best) {
					best = text
				}
			}
		}
	}
	if best == "" {
		return nil
	}
	c.discount = best
	c.discountSource = labelExplicit
	c.addSignal(models.SignalExplicitDiscountBadge, "Explicit discount: "+best)
	return nil
}

// strikePrice is stage 7: a superseded price inside the primary price block
// confirms (or sets) the normal price.
func (c *pageCheck) strikePrice(ctx context.Context) error {
	if c.current == nil {
		return nil
	}
	var block renderer.Element
	for _, sel := range primaryPriceBlocks {
		els, err := c.page.QueryAll(ctx, sel)
		if err != nil {
			return err
		}
		if len(els) > 0 {
			block = els[0]
			break
		}
	}
	if block == nil {
		return nil
	}

	for _, table := range [][]string{strikeSelectors, secondaryPriceSelectors} {
		for _, sel := range table {
			els, err := block.QueryAll(sel)
			if err != nil {
				return err
			}
			for _, el := range els {
				raw, err := el.Text()
				if err != nil {
					return err
				}
				r, ok := pricing.NewReading(raw, sel)
				if !ok || !pricing.Exceeds(r.Value, c.current.Value, c.cfg.PriceMargin) {
					continue
				}
				c.normal = &r
				c.addSignal(models.SignalStrikePrice, "Strike price: "+r.RawText)
				if c.discountSource != labelExplicit {
					c.discount = pricing.DiscountLabel(r.Value, c.current.Value)
					c.discountSource = labelComputed
				}
				return nil
			}
		}
	}
	return nil
}

// fuse is stage 8.
func (c *pageCheck) fuse(url string) models.PromoCheckResult {
	res := models.PromoCheckResult{
		URL:           url,
		CurrentPrice:  models.Placeholder(models.PlaceholderNotFound),
		NormalPrice:   models.Placeholder(models.PlaceholderNotAvailable),
		DiscountLabel: models.PlaceholderNotAvailable,
	}
	if c.current != nil {
		res.CurrentPrice = models.FieldOf(*c.current)
	}
	if c.normal != nil {
		res.NormalPrice = models.FieldOf(*c.normal)
	}
	if c.discount != "" {
		res.DiscountLabel = c.discount
	}

	if len(c.signals) == 0 {
		res.Status = models.StatusNoPromo
		res.Details = noPromoDetails
		return res
	}

	res.Status = models.StatusActive
	res.Signals = append([]models.PromoSignal(nil), c.signals...)
	res.Details = joinLabels(c.signals)
	return res
}

// visibleTexts returns the text of every visible element matching sel.
func (c *pageCheck) visibleTexts(ctx context.Context, sel string) ([]string, error) {
	els, err := c.page.QueryAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, nil
}

// joinLabels dedupes and sorts labels, joined with "; ".
func joinLabels(signals []models.PromoSignal) string {
	set := make(map[string]struct{}, len(signals))
	labels := make([]string, 0, len(signals))
	for _, s := range signals {
		if _, ok := set[s.Label]; ok {
			continue
		}
		set[s.Label] = struct{}{}
		labels = append(labels, s.Label)
	}
	sort.Strings(labels)
	return strings.Join(labels, "; ")
}

// looksLikeDiscount accepts short texts holding a percentage together with
// a minus sign or a reduction keyword.
func looksLikeDiscount(text string, maxRunes int) bool {
	if text == "" || !strings.Contains(text, "%") {
		return false
	}
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		return false
	}
	if containsAny(text, minusSigns) {
		return true
	}
	return containsAny(strings.ToLower(text), discountKeywords)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func containsFold(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// cleanText collapses all whitespace runs, newlines included, to one space.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimRight(string([]rune(s)[:max]), " ") + "..."
}
