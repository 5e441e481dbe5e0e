// Package template generates YouTube titles, descriptions and tags from
// product data, and parses product identity back out of channel titles.
// All functions are pure.
package template

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/idev006/MTYoutubeAutoPost/task"
)

const (
	// maxTitleLen is YouTube's title limit.
	maxTitleLen = 100
	// maxDescriptionLen is YouTube's description limit.
	maxDescriptionLen = 5000
	// maxTags and maxTagChars are YouTube's tag limits.
	maxTags     = 30
	maxTagChars = 500
)

const sectionRule = "━━━━━━━━━━━━━━━━━━━━━━"

// GenerateTitle builds the channel title for a product episode.
//
// Format: {prod_code}-{prod_name}-{prod_short_descr} ep.{episode}
//
// Titles longer than 100 characters are truncated in the middle so the
// product code prefix and episode suffix survive; ParseTitle depends on both.
// Limits count characters, not bytes; names here are mostly Thai.
func GenerateTitle(prodCode, prodName, shortDescr string, episode int) string {
	title := fmt.Sprintf("%s-%s-%s ep.%d", prodCode, prodName, shortDescr, episode)
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}

	name := []rune(prodName)
	if len(name) > 20 {
		name = name[:20]
	}
	title = fmt.Sprintf("%s-%s... ep.%d", prodCode, string(name), episode)
	if utf8.RuneCountInString(title) > maxTitleLen {
		title = fmt.Sprintf("%s-... ep.%d", prodCode, episode)
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}

// GenerateTitleFromTask builds the title from a VideoTask.
func GenerateTitleFromTask(t *task.VideoTask) string {
	return GenerateTitle(t.ProdCode, t.ProdName, t.ProdShortDescr, t.Episode)
}

// GenerateDescription builds the video description: long description,
// affiliate link block, optional discount code and hashtags. Capped at 5000
// characters.
func GenerateDescription(longDescr string, affURLs []task.AffiliateURL, discountCode string, tags []string) string {
	var b strings.Builder

	b.WriteString(longDescr)
	b.WriteString("\n\n")
	b.WriteString(sectionRule)
	b.WriteString("\n🛒 ลิงก์สั่งซื้อ\n")
	b.WriteString(sectionRule)
	b.WriteString("\n")
	b.WriteString(formatAffiliateLinks(affURLs))
	b.WriteString("\n")
	b.WriteString(formatDiscountSection(discountCode))
	b.WriteString(sectionRule)
	b.WriteString("\n")
	b.WriteString(formatTagsSection(tags))

	descr := strings.ReplaceAll(b.String(), "\n\n\n", "\n\n")
	if runes := []rune(descr); len(runes) > maxDescriptionLen {
		descr = string(runes[:maxDescriptionLen-3]) + "..."
	}
	return strings.TrimSpace(descr)
}

// GenerateDescriptionFromTask builds the description from a VideoTask.
func GenerateDescriptionFromTask(t *task.VideoTask) string {
	return GenerateDescription(t.ProdLongDescr, t.AffURLs, t.DiscountCode, t.ProdTags)
}

func formatAffiliateLinks(urls []task.AffiliateURL) string {
	if len(urls) == 0 {
		return ""
	}
	lines := make([]string, 0, len(urls))
	for _, u := range urls {
		emoji := "🔗"
		if u.IsPrimary {
			emoji = "🛒"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", emoji, u.Label, u.URL))
	}
	return strings.Join(lines, "\n")
}

func formatDiscountSection(code string) string {
	if code == "" {
		return ""
	}
	return fmt.Sprintf("\n🎁 ใช้โค้ด: %s รับส่วนลดทันที!\n", code)
}

func formatTagsSection(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	if len(tags) > 15 {
		tags = tags[:15]
	}
	hashtags := make([]string, 0, len(tags))
	for _, tag := range tags {
		hashtags = append(hashtags, "#"+strings.ReplaceAll(tag, " ", ""))
	}
	return strings.Join(hashtags, " ")
}

// GenerateTags merges product and custom tags, deduplicates them
// case-insensitively preserving the first spelling, and enforces YouTube's
// limits of 30 tags and 500 total characters.
func GenerateTags(prodTags, customTags []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, tag := range append(append([]string{}, prodTags...), customTags...) {
		trimmed := strings.TrimSpace(tag)
		key := strings.ToLower(trimmed)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, trimmed)
	}

	if len(unique) > maxTags {
		unique = unique[:maxTags]
	}

	var result []string
	total := 0
	for _, tag := range unique {
		if total+len(tag)+1 > maxTagChars {
			break
		}
		result = append(result, tag)
		total += len(tag) + 1
	}
	return result
}

// ParseTitle extracts the product code and episode number from a channel
// title produced by GenerateTitle. The code is the segment before the first
// '-'; the episode is the run of digits after the last " ep." marker
// (case-insensitive), defaulting to 1 when the marker is absent. Titles
// without a '-' do not match.
func ParseTitle(title string) (prodCode string, episode int, ok bool) {
	if !strings.Contains(title, "-") {
		return "", 0, false
	}
	prodCode = strings.TrimSpace(strings.SplitN(title, "-", 2)[0])
	if prodCode == "" {
		return "", 0, false
	}

	episode = 1
	lower := strings.ToLower(title)
	if idx := strings.LastIndex(lower, " ep."); idx >= 0 {
		digits := 0
		n := 0
		for _, c := range lower[idx+4:] {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int(c-'0')
			digits++
		}
		if digits > 0 {
			episode = n
		}
	}
	return prodCode, episode, true
}
