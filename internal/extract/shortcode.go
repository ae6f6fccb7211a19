package extract

import "regexp"

// Shortcodes whose inner content is text worth keeping; the wrapper tags
// themselves are dropped.
var wrapperShortcodeRe = regexp.MustCompile(`(?s)\[(\w[\w-]*)(?:\s[^\]]*)?\](.*?)\[/(\w[\w-]*)\]`)

// Self-contained shortcodes that expand to media or widgets, never text.
var voidShortcodeRe = regexp.MustCompile(`\[(?:gallery|audio|video|playlist|embed|contact-form-7|caption)\b[^\]]*\]`)

// Anything still bracket-shaped after unwrapping.
var bareShortcodeRe = regexp.MustCompile(`\[/?\w[\w-]*(?:\s[^\]]*)?\]`)

// ExpandShortcodes produces the "rendered" content candidate: paired
// shortcodes are unwrapped to their inner text, media shortcodes and any
// leftover tags are removed. Runs until a fixed point so nested wrappers
// fully unwrap.
func ExpandShortcodes(content string) string {
	s := voidShortcodeRe.ReplaceAllString(content, "")
	for {
		next := wrapperShortcodeRe.ReplaceAllString(s, "$2")
		if next == s {
			break
		}
		s = next
	}
	return bareShortcodeRe.ReplaceAllString(s, "")
}
