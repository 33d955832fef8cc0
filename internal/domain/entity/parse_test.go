package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCharactersWrapped(t *testing.T) {
	got := ParseCharacters("Sure!\n{\"characters\": [{\"name\": \"Ash\", \"traits\": [\"proud\"]}]}")
	require.Len(t, got, 1)
	assert.Equal(t, "Ash", got[0].Name)
	assert.Equal(t, []string{"proud"}, got[0].Traits)
	assert.Nil(t, ParseCharacters("no json at all"))
}

func TestParseWorldKeepsNonStringValues(t *testing.T) {
	got := ParseWorld("```json\n{\"setting\": \"a drowned city\", \"moons\": 2}\n```")
	assert.Equal(t, "a drowned city", got["setting"])
	assert.Equal(t, "2", got["moons"])
}

func TestParseTimeline(t *testing.T) {
	got := ParseTimeline("- Chapter 1: The egg hatches\n2. chapter 3 - The siege\n\nEpilogue notes")
	require.Len(t, got, 3)
	assert.Equal(t, TimelineEvent{Chapter: 1, Event: "The egg hatches"}, got[0])
	assert.Equal(t, TimelineEvent{Chapter: 3, Event: "The siege"}, got[1])
	assert.Equal(t, TimelineEvent{Event: "Epilogue notes"}, got[2])
}

func TestSummariesAndContextRoundTrip(t *testing.T) {
	s1 := SectionSummary{Chapter: 1, Section: 1, Summary: "The egg hatches."}
	s2 := SectionSummary{Chapter: 1, Section: 2, Summary: "Mira flees\nthe village."}
	assert.Equal(t, []SectionSummary{s1, s2}, ParseSummaries(s1.Block()+s2.Block()))

	e := ContextEntry{Chapter: 2, Section: 1, Digest: "Events: [storm], Mood: tense"}
	got := ParseContext("Novel started: A dragon.\n" + e.Line())
	assert.Equal(t, []ContextEntry{e}, got)
}
