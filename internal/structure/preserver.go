// Package structure converts page markup into a flat annotated text stream
// the LLM prompts can consume. Headings, lists, testimonials, FAQs and
// semantic regions are rewritten into bracket markers; everything that isn't
// content is stripped.
package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Marker vocabulary. Downstream prompts document these, so the exact
// spelling is load-bearing.
const (
	ListStart         = "[LIST START]"
	ListEnd           = "[LIST END]"
	NumberedListStart = "[NUMBERED LIST START]"
	NumberedListEnd   = "[NUMBERED LIST END]"
	TestimonialStart  = "[TESTIMONIAL START]"
	TestimonialEnd    = "[TESTIMONIAL END]"
	FAQItemStart      = "[FAQ ITEM START]"
	FAQItemEnd        = "[FAQ ITEM END]"
)

// transform is one step of the pipeline. Each step is independent and
// idempotent when re-applied to its own output.
type transform struct {
	name string
	fn   func(string) string
}

var pipeline = []transform{
	{"strip-noise", stripNoise},
	{"headings", convertHeadings},
	{"lists", convertLists},
	{"testimonials", convertTestimonials},
	{"faqs", convertFAQs},
	{"regions", convertRegions},
	{"emphasis", convertEmphasis},
	{"paragraphs", convertParagraphs},
	{"links", convertLinks},
	{"finalize", finalize},
}

// ToStructuredText runs the full transform pipeline over raw markup.
// Identical input yields byte-identical output. Empty or whitespace-only
// input yields the empty string.
func ToStructuredText(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	s := markup
	for _, t := range pipeline {
		s = t.fn(s)
	}
	return s
}

// --- step 1: noise stripping ---

var noiseRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
	regexp.MustCompile(`(?is)<form\b[^>]*>.*?</form>`),
	regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`),
	regexp.MustCompile(`(?is)<(?:embed|object|canvas|svg|video|audio)\b[^>]*>.*?</(?:embed|object|canvas|svg|video|audio)>`),
	regexp.MustCompile(`(?is)<(?:input|button|select|textarea)\b[^>]*/?>`),
}

func stripNoise(s string) string {
	for _, re := range noiseRes {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// --- step 2: headings ---

var headingRe = regexp.MustCompile(`(?is)<h[1-6][^>]*>(.*?)</h[1-6]>`)

func convertHeadings(s string) string {
	return headingRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := headingRe.FindStringSubmatch(m)[1]
		text := normalizeSpace(stripTags(inner))
		if text == "" {
			return ""
		}
		return fmt.Sprintf("\n\n## %s ##\n\n", text)
	})
}

// --- step 3: lists ---

var (
	ulRe = regexp.MustCompile(`(?is)<ul[^>]*>(.*?)</ul>`)
	olRe = regexp.MustCompile(`(?is)<ol[^>]*>(.*?)</ol>`)
	liRe = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
)

func convertLists(s string) string {
	s = ulRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := ulRe.FindStringSubmatch(m)[1]
		return "\n" + ListStart + "\n" + convertListItems(inner) + ListEnd + "\n"
	})
	s = olRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := olRe.FindStringSubmatch(m)[1]
		return "\n" + NumberedListStart + "\n" + convertListItems(inner) + NumberedListEnd + "\n"
	})
	return s
}

func convertListItems(inner string) string {
	var b strings.Builder
	for _, m := range liRe.FindAllStringSubmatch(inner, -1) {
		text := normalizeSpace(stripTags(m[1]))
		if text == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// --- step 4: testimonials ---

// testimonialClassRe matches both generic review markup and the widget
// classes the common page builders emit for testimonial modules.
var testimonialClassRe = regexp.MustCompile(`(?i)\b(testimonial|review|client-quote|quote-box|feedback)`)

var (
	filledStarRe = regexp.MustCompile(`(?i)\b(filled|full|active)\b`)
	starClassRe  = regexp.MustCompile(`(?i)star`)
	inlineRatingRe = regexp.MustCompile(`\b([0-5](?:\.\d)?)\s*/\s*5\b`)
)

var authorSelectors = []string{
	".testimonial-author", ".author-name", ".client-name", ".author",
	"cite", ".cite", "[class*=name]",
}

func convertTestimonials(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	changed := false

	// Class-matched containers, innermost first so a wrapper like
	// "testimonials-section" doesn't swallow its individual items.
	for _, s := range innermostMatches(doc, testimonialClassRe) {
		quote, author := testimonialParts(s)
		if quote == "" {
			continue
		}
		rating := extractRating(s)
		replaceWithText(s, formatTestimonial(quote, author, rating))
		changed = true
	}

	// Bare blockquote/cite pairs not inside a class-matched container
	// (those were consumed above).
	doc.Find("blockquote").Each(func(_ int, s *goquery.Selection) {
		author := normalizeSpace(s.Find("cite").First().Text())
		clone := s.Clone()
		clone.Find("cite").Remove()
		quote := normalizeSpace(clone.Text())
		if quote == "" {
			return
		}
		replaceWithText(s, formatTestimonial(quote, author, ""))
		changed = true
	})

	if !changed {
		return markup
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return markup
	}
	return out
}

func formatTestimonial(quote, author, rating string) string {
	var b strings.Builder
	b.WriteString("\n" + TestimonialStart + "\n")
	b.WriteString("Quote: " + quote + "\n")
	if author != "" {
		b.WriteString("Author: " + author + "\n")
	}
	if rating != "" {
		b.WriteString("Rating: " + rating + "\n")
	}
	b.WriteString(TestimonialEnd + "\n")
	return b.String()
}

func testimonialParts(s *goquery.Selection) (quote, author string) {
	for _, sel := range authorSelectors {
		if t := normalizeSpace(s.Find(sel).First().Text()); t != "" {
			author = t
			break
		}
	}

	for _, sel := range []string{"blockquote", ".quote", "[class*=content]", "[class*=text]", "p"} {
		found := s.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		clone := found.Clone()
		clone.Find("cite").Remove()
		if t := normalizeSpace(clone.Text()); t != "" {
			quote = t
			break
		}
	}
	if quote == "" {
		clone := s.Clone()
		clone.Find("cite").Remove()
		quote = normalizeSpace(clone.Text())
		if author != "" {
			quote = normalizeSpace(strings.Replace(quote, author, "", 1))
		}
	}
	return quote, author
}

// extractRating tries numeric data attributes, then filled-star class
// counts (capped at 5), then inline "X/5" text.
func extractRating(s *goquery.Selection) string {
	for _, attr := range []string{"data-rating", "data-score", "data-stars"} {
		if v, ok := s.Attr(attr); ok && v != "" {
			return v + "/5"
		}
		found := ""
		s.Find("[" + attr + "]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if v, ok := el.Attr(attr); ok && v != "" {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			return found + "/5"
		}
	}

	filled := 0
	s.Find("[class]").Each(func(_ int, el *goquery.Selection) {
		class, _ := el.Attr("class")
		if starClassRe.MatchString(class) && filledStarRe.MatchString(class) {
			filled++
		}
	})
	if filled > 0 {
		if filled > 5 {
			filled = 5
		}
		return fmt.Sprintf("%d/5", filled)
	}

	if m := inlineRatingRe.FindStringSubmatch(s.Text()); m != nil {
		return m[1] + "/5"
	}
	return ""
}

// --- step 5: FAQs ---

var faqClassRe = regexp.MustCompile(`(?i)\b(faq|accordion|toggle)`)

var questionSelectors = []string{
	"summary", ".faq-question", ".question", ".accordion-title",
	".toggle-title", "[class*=tab-title]", "[class*=toggle_title]",
}

var answerSelectors = []string{
	".faq-answer", ".answer", ".accordion-content", ".toggle-content",
	"[class*=tab-content]", "[class*=toggle_content]",
}

var headingMarkerRe = regexp.MustCompile(`##\s*(.+?)\s*##`)

func convertFAQs(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	changed := false

	// Native disclosure elements.
	doc.Find("details").Each(func(_ int, s *goquery.Selection) {
		question := normalizeSpace(s.Find("summary").First().Text())
		clone := s.Clone()
		clone.Find("summary").Remove()
		answer := normalizeSpace(clone.Text())
		if question == "" || answer == "" {
			return
		}
		replaceWithText(s, formatFAQ(question, answer))
		changed = true
	})

	for _, s := range innermostMatches(doc, faqClassRe) {
		question, answer := faqParts(s)
		if question == "" || answer == "" {
			continue
		}
		replaceWithText(s, formatFAQ(question, answer))
		changed = true
	}

	if !changed {
		return markup
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return markup
	}
	return out
}

func formatFAQ(question, answer string) string {
	return "\n" + FAQItemStart + "\nQuestion: " + question + "\nAnswer: " + answer + "\n" + FAQItemEnd + "\n"
}

func faqParts(s *goquery.Selection) (question, answer string) {
	for _, sel := range questionSelectors {
		if t := normalizeSpace(s.Find(sel).First().Text()); t != "" {
			question = t
			break
		}
	}
	for _, sel := range answerSelectors {
		if t := normalizeSpace(s.Find(sel).First().Text()); t != "" {
			answer = t
			break
		}
	}

	text := normalizeSpace(s.Text())
	// Headings were already rewritten to ## markers by the time this
	// transform runs, so an accordion title may survive only as marker text.
	if question == "" {
		if m := headingMarkerRe.FindStringSubmatch(text); m != nil {
			question = normalizeSpace(m[1])
		}
	}
	if question == "" {
		return "", ""
	}
	if answer == "" {
		rest := strings.Replace(text, question, "", 1)
		rest = headingMarkerRe.ReplaceAllString(rest, "")
		answer = normalizeSpace(strings.Trim(rest, "# "))
	}
	return question, answer
}

// --- step 6: semantic regions ---

var (
	regionOpenRe  = regexp.MustCompile(`(?i)<(section|article|aside|nav|header|footer)\b[^>]*>`)
	regionCloseRe = regexp.MustCompile(`(?i)</(section|article|aside|nav|header|footer)>`)
)

func convertRegions(s string) string {
	s = regionOpenRe.ReplaceAllStringFunc(s, func(m string) string {
		tag := strings.ToUpper(regionOpenRe.FindStringSubmatch(m)[1])
		return "\n[" + tag + "]\n"
	})
	s = regionCloseRe.ReplaceAllStringFunc(s, func(m string) string {
		tag := strings.ToUpper(regionCloseRe.FindStringSubmatch(m)[1])
		return "\n[/" + tag + "]\n"
	})
	return s
}

// --- step 7: emphasis ---

var (
	strongRe = regexp.MustCompile(`(?is)<(?:strong|b)\b[^>]*>(.*?)</(?:strong|b)>`)
	emRe     = regexp.MustCompile(`(?is)<(?:em|i)\b[^>]*>(.*?)</(?:em|i)>`)
)

func convertEmphasis(s string) string {
	s = strongRe.ReplaceAllStringFunc(s, func(m string) string {
		text := normalizeSpace(stripTags(strongRe.FindStringSubmatch(m)[1]))
		if text == "" {
			return ""
		}
		return "**" + text + "**"
	})
	s = emRe.ReplaceAllStringFunc(s, func(m string) string {
		text := normalizeSpace(stripTags(emRe.FindStringSubmatch(m)[1]))
		if text == "" {
			return ""
		}
		return "*" + text + "*"
	})
	return s
}

// --- step 8: paragraphs ---

var paragraphRe = regexp.MustCompile(`(?i)</?(?:p|div)\b[^>]*>|<br\s*/?>`)

func convertParagraphs(s string) string {
	return paragraphRe.ReplaceAllString(s, "\n")
}

// --- step 9: links ---

var (
	linkRe     = regexp.MustCompile(`(?is)<a\b[^>]*>(.*?)</a>`)
	hrefRe     = regexp.MustCompile(`(?i)href\s*=\s*["']?([^"'>\s]+)`)
	keepHrefRe = regexp.MustCompile(`(?i)^(https?://|mailto:|tel:)`)
)

// convertLinks keeps link text and appends the URL only when it points
// outside the page: mailto:, tel:, or absolute http(s). Relative internal
// links are just noise for schema purposes.
func convertLinks(s string) string {
	return linkRe.ReplaceAllStringFunc(s, func(m string) string {
		text := normalizeSpace(stripTags(linkRe.FindStringSubmatch(m)[1]))
		if text == "" {
			return ""
		}
		if hm := hrefRe.FindStringSubmatch(m); hm != nil && keepHrefRe.MatchString(hm[1]) {
			return text + " (" + hm[1] + ")"
		}
		return text
	})
}

// --- step 10: final strip + normalize ---

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
)

func finalize(s string) string {
	// Tokenize whatever markup survives and keep only text. The tokenizer
	// also decodes entities in text nodes.
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.WriteString(z.Token().Data)
		}
	}
	text := b.String()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// --- helpers ---

var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}

// partClassRe matches classes that name an internal part of an item
// (testimonial-content, accordion-title, review-author). A part never opens
// a container of its own and must not shadow its parent container.
var partClassRe = regexp.MustCompile(`(?i)[-_](content|text|title|author|name|question|answer|heading|header|body|inner|icon|meta)\b`)

// innermostMatches returns elements whose class matches re and that contain
// no matching descendant. Part-suffixed classes are skipped on both sides of
// the check: a container like "testimonial" stays innermost even though its
// "testimonial-content" child also matches re.
func innermostMatches(doc *goquery.Document, re *regexp.Regexp) []*goquery.Selection {
	var matched []*goquery.Selection
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !re.MatchString(class) || partClassRe.MatchString(class) {
			return
		}
		inner := false
		s.Find("[class]").EachWithBreak(func(_ int, d *goquery.Selection) bool {
			dc, _ := d.Attr("class")
			if re.MatchString(dc) && !partClassRe.MatchString(dc) {
				inner = true
				return false
			}
			return true
		})
		if !inner {
			matched = append(matched, s)
		}
	})
	return matched
}

// replaceWithText swaps an element for a plain text node holding marker
// text. The text is escaped here and decoded again by the final transform.
func replaceWithText(s *goquery.Selection, text string) {
	s.ReplaceWithHtml("<span>" + html.EscapeString(text) + "</span>")
}
