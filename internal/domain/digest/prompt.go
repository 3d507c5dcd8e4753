// Package digest builds the summarization prompt and parses the model's tagged reply.
package digest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tag names shared by the prompt and the parser.
const (
	tagScratch     = "scratchpad"
	tagAnswer      = "digest"
	tagTitle       = "title"
	tagSummary     = "summary"
	tagMethodology = "methodology"
	tagTakeaways   = "takeaways"
	tagItem        = "item"
	tagPaper       = "paper_text"
)

const systemInstruction = `You are a science journalist who explains research papers to a general audience.
You read the paper text you are given and write a short, accurate digest of it.
Never invent findings that are not in the text.`

const answerContract = `Work in two parts.

First, think inside <scratchpad></scratchpad>. Note the research question, the study design,
the main results and any limitations. The scratchpad is thrown away and never shown to readers.

Then write the digest inside <digest></digest> using exactly these blocks:

<digest>
<title>A plain title of at most 10 words naming what the paper is about.</title>
<summary>One paragraph of about 150 words covering what was studied, why it matters and how it was done,
written for a high-school reader. Use an everyday analogy when a concept needs one.</summary>
<methodology>One or two plain sentences describing the study design, for example
"The researchers surveyed 500 adults" or "They trained a model to classify images".</methodology>
<takeaways>
<item>The most important finding.</item>
<item>The second most important finding.</item>
<item>A third finding or an important limitation the authors mention.</item>
<item>A real-world application, only if the paper supports one.</item>
</takeaways>
</digest>

Avoid jargon everywhere. Do not write anything after </digest>.`

const restatement = `Your previous reply could not be read because one or more required blocks were missing.
Reply again. Keep the scratchpad short, and make sure <title>, <summary> and <methodology> each
appear once inside <digest> with their closing tags.`

// Prompt is a rendered request for the model.
type Prompt struct {
	System string
	User   string
	// Truncated reports whether the paper text was cut to fit the character budget.
	Truncated bool
}

// PromptOptions controls prompt rendering.
type PromptOptions struct {
	// MaxChars caps the paper text length in characters (runes).
	MaxChars int
	// Language is the detected language of the paper, if known.
	Language string
	// Restate adds the correction preamble used after an unparseable reply.
	Restate bool
}

// BuildPrompt renders the fixed prompt around the paper text.
func BuildPrompt(text string, opts PromptOptions) Prompt {
	body, truncated := Truncate(text, opts.MaxChars)

	var b strings.Builder
	if opts.Restate {
		b.WriteString(restatement)
		b.WriteString("\n\n")
	}
	b.WriteString(answerContract)
	b.WriteString("\n\n")
	if lang := strings.TrimSpace(opts.Language); lang != "" && !strings.EqualFold(lang, "english") {
		fmt.Fprintf(&b, "The paper is written in %s. Write the digest in English.\n\n", lang)
	}
	if truncated {
		b.WriteString("The paper text below was shortened to fit; summarize what is present.\n\n")
	}
	fmt.Fprintf(&b, "<%s>\n%s\n</%s>", tagPaper, body, tagPaper)

	return Prompt{System: systemInstruction, User: b.String(), Truncated: truncated}
}

// Truncate cuts s to at most maxChars runes. A non-positive maxChars disables truncation.
func Truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i], true
		}
		n++
	}
	return s, false
}
