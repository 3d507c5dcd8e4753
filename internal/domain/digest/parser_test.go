package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `<scratchpad>
The paper studies sleep. <title>Not this one</title>
</scratchpad>
<digest>
<title>Sleep Helps Memory</title>
<summary>Researchers found that a night of sleep strengthens new memories.</summary>
<methodology>They tested 40 students before and after sleep.</methodology>
<takeaways>
<item>Sleep improves recall.</item>
<item>Short naps help less.</item>
<item>The sample was small.</item>
</takeaways>
</digest>`

func TestParser_WellFormed(t *testing.T) {
	res := NewParser(0.5).Parse(wellFormed)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Sleep Helps Memory", res.Digest.Title)
	assert.Equal(t, "They tested 40 students before and after sleep.", res.Digest.Methodology)
	assert.Equal(t, []string{"Sleep improves recall.", "Short naps help less.", "The sample was small."}, res.Digest.Takeaways)
	assert.Empty(t, res.Gaps)
}

func TestParser_UnclosedTakeawaysKeepsRecoverableItems(t *testing.T) {
	reply := `<title>T</title>
<summary>S</summary>
<methodology>M</methodology>
<takeaways>
<item>First finding
<item>Second finding
`
	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Equal(t, []string{"First finding", "Second finding"}, res.Digest.Takeaways)
	assert.Contains(t, res.Gaps, "takeaways:unclosed")
	assert.Contains(t, res.Gaps, "takeaways:short")
}

func TestParser_EmptyTakeawaysIsNotACrash(t *testing.T) {
	reply := "<title>T</title><summary>S</summary><methodology>M</methodology><takeaways>\n"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.NotNil(t, res.Digest.Takeaways)
	assert.Empty(t, res.Digest.Takeaways)
}

func TestParser_MissingTakeawaysBlock(t *testing.T) {
	res := NewParser(0.5).Parse("<title>T</title><summary>S</summary><methodology>M</methodology>")

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Contains(t, res.Gaps, "takeaways:missing")
	assert.Empty(t, res.Digest.Takeaways)
}

func TestParser_MissingRequiredBlock(t *testing.T) {
	reply := "<title>T</title><methodology>M</methodology><takeaways><item>a</item></takeaways>"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Unparseable, res.Outcome)
	assert.Contains(t, res.Gaps, "summary:missing")
	assert.Contains(t, res.Reason(), "summary:missing")
}

func TestParser_UnclosedBlockEndsAtNextTag(t *testing.T) {
	reply := "<title>T</title>\n<summary>Summary text\n<methodology>M</methodology>\n" +
		"<takeaways><item>a</item><item>b</item><item>c</item></takeaways>"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Equal(t, "Summary text", res.Digest.Summary)
	assert.Equal(t, "M", res.Digest.Methodology)
	assert.Contains(t, res.Gaps, "summary:recovered")
}

func TestParser_StrayTextThreshold(t *testing.T) {
	reply := `<title>T</title>
<summary>
Analysis: the abstract says a lot of things about stuff here
Thinking: maybe mention the sample
Real summary sentence.
</summary>
<methodology>M</methodology>`

	strict := NewParser(0.5).Parse(reply)
	assert.Equal(t, Unparseable, strict.Outcome)
	assert.Contains(t, strict.Gaps, "summary:stray")

	lenient := NewParser(0.9).Parse(reply)
	require.Equal(t, PartiallyParsed, lenient.Outcome)
	assert.Equal(t, "Real summary sentence.", lenient.Digest.Summary)
	assert.Contains(t, lenient.Gaps, "summary:recovered")
}

func TestParser_UnclosedScratchAndReorderedBlocks(t *testing.T) {
	reply := `<scratchpad>
I think the title might be <title>Draft</title>
<digest>
<takeaways><item>x</item><item>y</item><item>z</item></takeaways>
<methodology>M</methodology>
<TITLE>Final</TITLE>
<summary>S</summary>
</digest>`

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Final", res.Digest.Title)
	assert.Equal(t, []string{"x", "y", "z"}, res.Digest.Takeaways)
}

func TestParser_CommentAfterDigestIsIgnored(t *testing.T) {
	reply := wellFormed + "\nI kept the <summary> short and simple as requested."

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Researchers found that a night of sleep strengthens new memories.", res.Digest.Summary)
}

func TestParser_ClosedBlockBeatsLaterMention(t *testing.T) {
	reply := `<title>Sleep Helps Memory</title>
<summary>Researchers found that a night of sleep strengthens new memories.</summary>
<methodology>They tested 40 students before and after sleep.</methodology>
<takeaways><item>a</item><item>b</item><item>c</item></takeaways>
I kept the <summary> short and simple as requested.`

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Researchers found that a night of sleep strengthens new memories.", res.Digest.Summary)
}

func TestParser_TagMentionedInsideBlock(t *testing.T) {
	tests := []struct {
		name    string
		summary string
	}{
		{
			name:    "bare opening tag",
			summary: "The study looks at how the HTML <title> element affects search ranking.",
		},
		{
			name:    "closed tag pair",
			summary: "Pages that set <title>Home</title> rank lower than descriptive ones.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := "<digest>\n<title>Markup and Search Ranking</title>\n" +
				"<summary>" + tt.summary + "</summary>\n" +
				"<methodology>They compared 1,000 pages.</methodology>\n" +
				"<takeaways><item>a</item><item>b</item><item>c</item></takeaways>\n</digest>"

			res := NewParser(0.5).Parse(reply)

			require.Equal(t, Parsed, res.Outcome, res.Reason())
			assert.Equal(t, "Markup and Search Ranking", res.Digest.Title)
			assert.Equal(t, tt.summary, res.Digest.Summary)
		})
	}
}

func TestParser_ConversationalOpenersAreContent(t *testing.T) {
	reply := `<digest>
<title>Sleep Helps Memory</title>
<summary>Let me put it simply: sleeping helps students remember what they studied.</summary>
<methodology>Note: the researchers tested 40 students before and after sleep.</methodology>
<takeaways>
<item>Okay, the short version is that sleep improves recall.</item>
<item>I'll add that naps help less.</item>
<item>Thoughts: the sample was small.</item>
</takeaways>
</digest>`

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Let me put it simply: sleeping helps students remember what they studied.", res.Digest.Summary)
	assert.Equal(t, "Note: the researchers tested 40 students before and after sleep.", res.Digest.Methodology)
	assert.Equal(t, "Thoughts: the sample was small.", res.Digest.Takeaways[2])
}

func TestParser_TagsWithAttributes(t *testing.T) {
	reply := `<digest lang="en">
<title lang="en">Sleep Helps Memory</title>
<summary class="plain">S</summary>
<methodology>M</methodology>
<takeaways><item id="1">a</item><item id="2">b</item><item id="3">c</item></takeaways>
</digest>`

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, Parsed, res.Outcome, res.Reason())
	assert.Equal(t, "Sleep Helps Memory", res.Digest.Title)
	assert.Equal(t, []string{"a", "b", "c"}, res.Digest.Takeaways)
}

func TestParser_EmptyWrapperFallsBackToWholeReply(t *testing.T) {
	reply := "<digest></digest>\n<title>T</title><summary>S</summary><methodology>M</methodology>"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Equal(t, "T", res.Digest.Title)
	assert.Contains(t, res.Gaps, "digest:ignored")
}

func TestParser_BulletFallbackAndCap(t *testing.T) {
	reply := "<title>**Bold Title**</title><summary>S</summary><methodology>M</methodology>\n" +
		"<takeaways>\n- one\n- two\n3. three\n* four\n- five\n</takeaways>"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Equal(t, "Bold Title", res.Digest.Title)
	assert.Equal(t, []string{"one", "two", "three", "four"}, res.Digest.Takeaways)
	assert.Contains(t, res.Gaps, "takeaways:bullets")
}

func TestParser_ItemsWithoutWrapper(t *testing.T) {
	reply := "<title>T</title><summary>S</summary><methodology>M</methodology>" +
		"<item>a</item><item>b</item><item>c</item>"

	res := NewParser(0.5).Parse(reply)

	require.Equal(t, PartiallyParsed, res.Outcome)
	assert.Equal(t, []string{"a", "b", "c"}, res.Digest.Takeaways)
	assert.Contains(t, res.Gaps, "takeaways:recovered")
}

func TestParser_GarbageIsUnparseable(t *testing.T) {
	res := NewParser(0.5).Parse(strings.Repeat("model output without any tags ", 20))

	assert.Equal(t, Unparseable, res.Outcome)
	assert.Len(t, res.Gaps, 4)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "parsed", Parsed.String())
	assert.Equal(t, "partially_parsed", PartiallyParsed.String())
	assert.Equal(t, "unparseable", Unparseable.String())
}
