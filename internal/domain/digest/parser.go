package digest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/target/paper-digest/internal/domain/model"
)

// Outcome classifies how much of a reply could be recovered.
type Outcome int

const (
	// Unparseable means a required block could not be recovered.
	Unparseable Outcome = iota
	// PartiallyParsed means every required block was recovered but some needed repair
	// or fewer takeaways than requested were found.
	PartiallyParsed
	// Parsed means the reply followed the contract.
	Parsed
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case PartiallyParsed:
		return "partially_parsed"
	default:
		return "unparseable"
	}
}

// Result is the outcome of parsing one reply.
type Result struct {
	Outcome Outcome
	// Digest holds whatever was recovered. It is complete unless Outcome is Unparseable.
	Digest model.Digest
	// Gaps lists repairs and shortfalls, e.g. "takeaways:unclosed" or "title:missing".
	Gaps []string
}

// Reason summarizes the gaps for logs and error messages.
func (r Result) Reason() string {
	if len(r.Gaps) == 0 {
		return ""
	}
	return strings.Join(r.Gaps, ", ")
}

// DefaultStrayTextRatio is used when a Parser is built with an out-of-range ratio.
const DefaultStrayTextRatio = 0.5

// Parser extracts a digest from a tagged reply without requiring well-formed markup.
type Parser struct {
	strayTextRatio float64
}

// NewParser returns a Parser that discards a block once more than strayTextRatio of its
// characters look like scratch analysis or tag debris.
func NewParser(strayTextRatio float64) Parser {
	if strayTextRatio <= 0 || strayTextRatio > 1 {
		strayTextRatio = DefaultStrayTextRatio
	}
	return Parser{strayTextRatio: strayTextRatio}
}

var (
	blockTags = []string{tagTitle, tagSummary, tagMethodology, tagTakeaways}

	openTagRe  = tagRegexps(`<%s\b[^>]*>`, tagScratch, tagAnswer, tagTitle, tagSummary, tagMethodology, tagTakeaways, tagItem)
	closeTagRe = tagRegexps(`</%s\s*>`, tagScratch, tagAnswer, tagTitle, tagSummary, tagMethodology, tagTakeaways, tagItem)

	// terminatorRe ends an unclosed block.
	terminatorRe = regexp.MustCompile(`<(?:` + strings.Join([]string{
		tagTitle, tagSummary, tagMethodology, tagTakeaways, tagScratch, tagAnswer,
	}, "|") + `)\b[^>]*>|</` + tagAnswer + `\s*>`)
)

func tagRegexps(pattern string, tags ...string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(tags))
	for _, t := range tags {
		out[t] = regexp.MustCompile(fmt.Sprintf(pattern, t))
	}
	return out
}

// block is a tagged region of the reply. Offsets are byte offsets into the reply.
type block struct {
	open       int // the opening '<'
	start, end int // content bounds
	closed     bool
}

// Parse recovers each block independently by delimiter search.
// When the reply carries a digest wrapper only its contents are searched.
func (p Parser) Parse(reply string) Result {
	masked := maskScratch(asciiLower(reply))

	lo, hi, wrapped := answerRegion(masked)
	res, missing := p.parseRegion(reply, masked, lo, hi)
	if wrapped && missing {
		// A broken wrapper should not hide blocks written outside it.
		if whole, wholeMissing := p.parseRegion(reply, masked, 0, len(masked)); !wholeMissing {
			res, missing = whole, false
			res.Gaps = append(res.Gaps, tagAnswer+":ignored")
		}
	}

	switch {
	case missing || !res.Digest.Complete():
		res.Outcome = Unparseable
	case len(res.Gaps) > 0 || len(res.Digest.Takeaways) < model.ExpectedTakeaways:
		if len(res.Digest.Takeaways) < model.ExpectedTakeaways {
			res.Gaps = append(res.Gaps, "takeaways:short")
		}
		res.Outcome = PartiallyParsed
	default:
		res.Outcome = Parsed
	}
	return res
}

func (p Parser) parseRegion(reply, masked string, lo, hi int) (Result, bool) {
	var res Result
	blocks := locateBlocks(masked, lo, hi)

	required := []struct {
		tag string
		dst *string
	}{
		{tagTitle, &res.Digest.Title},
		{tagSummary, &res.Digest.Summary},
		{tagMethodology, &res.Digest.Methodology},
	}

	missing := false
	for _, req := range required {
		blk, ok := blocks[req.tag]
		if !ok {
			res.Gaps = append(res.Gaps, req.tag+":missing")
			missing = true
			continue
		}
		text, cleaned, keep := p.clean(reply[blk.start:blk.end], blk.closed)
		if !keep {
			res.Gaps = append(res.Gaps, req.tag+":stray")
			missing = true
			continue
		}
		if req.tag == tagTitle {
			text = tidyTitle(text)
		}
		*req.dst = text
		if !blk.closed || cleaned {
			res.Gaps = append(res.Gaps, req.tag+":recovered")
		}
	}

	blk, ok := blocks[tagTakeaways]
	takeaways, tGaps := p.parseTakeaways(reply, masked, blk, ok, lo, hi)
	res.Gaps = append(res.Gaps, tGaps...)
	res.Digest.Takeaways = takeaways
	res.Digest = res.Digest.Normalize()
	return res, missing
}

// answerRegion returns the contents of the first digest wrapper outside the scratchpad.
func answerRegion(masked string) (lo, hi int, wrapped bool) {
	loc := openTagRe[tagAnswer].FindStringIndex(masked)
	if loc == nil {
		return 0, len(masked), false
	}
	lo, hi = loc[1], len(masked)
	if c := closeTagRe[tagAnswer].FindStringIndex(masked[lo:]); c != nil {
		hi = lo + c[0]
	}
	return lo, hi, true
}

// locateBlocks picks one block per tag within [lo, hi). The last closed block wins; an
// unclosed block is used only when no closed one exists. A tag that sits inside another
// tag's closed block is a mention and never selected.
func locateBlocks(masked string, lo, hi int) map[string]block {
	closedBy := make(map[string][]block, len(blockTags))
	openBy := make(map[string][]block, len(blockTags))
	for _, tag := range blockTags {
		closedBy[tag], openBy[tag] = scanBlocks(masked, lo, hi, tag)
	}

	othersClosed := func(tag string) []block {
		var out []block
		for _, t := range blockTags {
			if t != tag {
				out = append(out, closedBy[t]...)
			}
		}
		return out
	}

	picked := make(map[string]block, len(blockTags))
	for _, tag := range blockTags {
		others := othersClosed(tag)
		if b, ok := lastOutside(closedBy[tag], others); ok {
			picked[tag] = b
			continue
		}
		if b, ok := lastOutside(openBy[tag], others); ok {
			picked[tag] = b
		}
	}
	return picked
}

func lastOutside(cands, others []block) (block, bool) {
	for i := len(cands) - 1; i >= 0; i-- {
		if !insideAny(cands[i], others) {
			return cands[i], true
		}
	}
	return block{}, false
}

func insideAny(b block, others []block) bool {
	for _, o := range others {
		if o.open < b.open && b.open < o.end {
			return true
		}
	}
	return false
}

// scanBlocks pairs each closing tag with the nearest unpaired opening before it. Openings
// left unpaired become unclosed blocks cut at the next terminator.
func scanBlocks(masked string, lo, hi int, tag string) (closed, unclosed []block) {
	region := masked[lo:hi]
	opens := openTagRe[tag].FindAllStringIndex(region, -1)
	closes := closeTagRe[tag].FindAllStringIndex(region, -1)

	used := make([]bool, len(opens))
	floor := 0
	for _, c := range closes {
		pick := -1
		for i, o := range opens {
			if o[1] > c[0] {
				break
			}
			if !used[i] && o[0] >= floor {
				pick = i
			}
		}
		if pick < 0 {
			continue
		}
		used[pick] = true
		o := opens[pick]
		closed = append(closed, block{open: lo + o[0], start: lo + o[1], end: lo + c[0], closed: true})
		floor = c[1]
	}

	for i, o := range opens {
		if used[i] {
			continue
		}
		end := hi
		if t := terminatorRe.FindStringIndex(region[o[1]:]); t != nil {
			end = lo + o[1] + t[0]
		}
		unclosed = append(unclosed, block{open: lo + o[0], start: lo + o[1], end: end})
	}
	return closed, unclosed
}

func (p Parser) parseTakeaways(reply, masked string, blk block, ok bool, lo, hi int) ([]string, []string) {
	var gaps []string
	start, end := blk.start, blk.end
	if !ok {
		// Items without the wrapping block still count.
		if openTagRe[tagItem].MatchString(masked[lo:hi]) {
			start, end = lo, hi
			gaps = append(gaps, tagTakeaways+":recovered")
		} else {
			return []string{}, append(gaps, tagTakeaways+":missing")
		}
	} else if !blk.closed {
		gaps = append(gaps, tagTakeaways+":unclosed")
	}

	region := masked[start:end]
	opens := openTagRe[tagItem].FindAllStringIndex(region, -1)
	var items []string
	for i, o := range opens {
		itemStart := o[1]
		next := len(region)
		if i+1 < len(opens) {
			next = opens[i+1][0]
		}
		itemEnd, closed := next, false
		if c := closeTagRe[tagItem].FindStringIndex(region[itemStart:next]); c != nil {
			itemEnd, closed = itemStart+c[0], true
		} else {
			gaps = append(gaps, tagItem+":unclosed")
		}

		text, cleaned, keep := p.clean(reply[start+itemStart:start+itemEnd], closed)
		if keep && text != "" {
			items = append(items, collapseSpace(text))
			if cleaned {
				gaps = append(gaps, tagItem+":recovered")
			}
		}
	}

	if len(opens) == 0 && ok {
		items = bulletItems(reply[start:end])
		if len(items) > 0 {
			gaps = append(gaps, tagTakeaways+":bullets")
		}
	}

	if len(items) > model.MaxTakeaways {
		items = items[:model.MaxTakeaways]
	}
	if items == nil {
		items = []string{}
	}
	return items, gaps
}

// maskScratch blanks scratchpad regions so their contents cannot be mistaken for answer blocks.
// An unclosed scratchpad runs until the digest wrapper, or failing that the first title tag.
func maskScratch(lower string) string {
	buf := []byte(lower)
	from := 0
	for from < len(lower) {
		loc := openTagRe[tagScratch].FindStringIndex(lower[from:])
		if loc == nil {
			break
		}
		s, after := from+loc[0], from+loc[1]
		e := len(lower)
		rest := lower[after:]
		if c := closeTagRe[tagScratch].FindStringIndex(rest); c != nil {
			e = after + c[1]
		} else if n := openTagRe[tagAnswer].FindStringIndex(rest); n != nil {
			e = after + n[0]
		} else if n := openTagRe[tagTitle].FindStringIndex(rest); n != nil {
			e = after + n[0]
		}
		for k := s; k < e; k++ {
			buf[k] = ' '
		}
		from = e
	}
	return string(buf)
}

var (
	tagDebrisRe = regexp.MustCompile(`(?i)</?(?:` + strings.Join([]string{
		tagScratch, tagAnswer, tagTitle, tagSummary, tagMethodology, tagTakeaways, tagItem, tagPaper, "analysis",
	}, "|") + `)\b[^>]*>`)
	loneTagLineRe = regexp.MustCompile(`^\s*</?[A-Za-z_][A-Za-z0-9_\-]*(?:\s[^>]*)?/?>\s*$`)
	// scratchLabelRe matches lines the model labels as its own working notes.
	scratchLabelRe = regexp.MustCompile(
		`(?i)^\s*(?:[#*>\-]\s*)?(?:scratch(?:pad)?|analysis|reasoning|thinking|thoughts|step \d+)\s*:`,
	)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s+`)
)

// clean removes stray lines from a block. keep is false when stray text exceeds the tolerance.
// A labelled working-notes line is stray only next to other content, so a one-line block is
// always taken as written. Tag debris is stripped from unclosed blocks only.
func (p Parser) clean(raw string, closed bool) (text string, cleaned, keep bool) {
	lines := strings.Split(raw, "\n")
	content := 0
	for _, line := range lines {
		if visibleLen(line) > 0 && !loneTagLineRe.MatchString(line) {
			content++
		}
	}

	var kept []string
	total, stray := 0, 0
	for _, line := range lines {
		n := visibleLen(line)
		total += n
		if n == 0 {
			kept = append(kept, line)
			continue
		}
		if loneTagLineRe.MatchString(line) || (content > 1 && scratchLabelRe.MatchString(line)) {
			stray += n
			continue
		}
		kept = append(kept, line)
	}
	if total == 0 {
		return "", false, false
	}
	if float64(stray)/float64(total) > p.strayTextRatio {
		return "", true, false
	}

	out := strings.Join(kept, "\n")
	stripped := out
	if !closed {
		stripped = tagDebrisRe.ReplaceAllString(out, "")
	}
	cleaned = stray > 0 || stripped != out
	text = strings.TrimSpace(stripped)
	return text, cleaned, text != ""
}

func bulletItems(raw string) []string {
	var items []string
	for _, line := range strings.Split(raw, "\n") {
		if !bulletRe.MatchString(line) {
			continue
		}
		item := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
		item = tagDebrisRe.ReplaceAllString(item, "")
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func tidyTitle(s string) string {
	s = collapseSpace(s)
	s = strings.Trim(s, "*_#\"'` ")
	return strings.TrimSpace(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func visibleLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// asciiLower lowercases ASCII letters only so byte offsets stay aligned with the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
