package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"

	"facet/internal/schema"
)

func TestResponseSchema_ConstrainsLabelAndSentimentEnums(t *testing.T) {
	ls := legalSet("Conference Venue", "Food/Beverages")
	ls.Field = "sub_category"

	s := responseSchema(ls)
	require.Equal(t, genai.TypeObject, s.Type)

	items := s.Properties["classifications"].Items
	require.NotNil(t, items)
	assert.Equal(t, []string{"Conference Venue", "Food/Beverages"}, items.Properties["sub_category"].Enum)
	assert.Equal(t, schema.Sentiments, items.Properties["sentiment"].Enum)
	assert.ElementsMatch(t, []string{"excerpt", "reasoning", "sub_category", "sentiment"}, items.Required)
}

func TestParseClassifications_ReadsDynamicLabelField(t *testing.T) {
	text := `{"classifications": [
		{"excerpt": "WiFi was slow", "reasoning": "tech", "sub_category": "Event Technology", "sentiment": "negative"}
	]}`

	cands, err := parseClassifications(text, "sub_category")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Event Technology", cands[0].Label)
	assert.Equal(t, "WiFi was slow", cands[0].Excerpt)
	assert.Equal(t, "negative", cands[0].Sentiment)
}

func TestParseClassifications_StripsCodeFences(t *testing.T) {
	text := "```json\n{\"classifications\": []}\n```"
	cands, err := parseClassifications(text, "category")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestParseClassifications_EmptyResponseYieldsNoCandidates(t *testing.T) {
	cands, err := parseClassifications("", "category")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestParseClassifications_MalformedJSONErrors(t *testing.T) {
	_, err := parseClassifications("{not json", "category")
	assert.Error(t, err)
}
