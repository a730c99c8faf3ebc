package labeler_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhr/ragdex/internal/models"
	"github.com/tkhr/ragdex/pkg/labeler"
)

func TestLabel_MetadataAndIDs(t *testing.T) {
	fragments := []models.Fragment{
		{Content: "Sentence one.", StartOffset: 0},
		{Content: "Sentence two, with a comma.", StartOffset: 14},
	}

	ids, labeled := labeler.Label(fragments, "report.txt", 1700000000000000)

	require.Len(t, ids, 2)
	require.Len(t, labeled, 2)

	want0 := sha256.Sum256([]byte("0_report.txt"))
	want1 := sha256.Sum256([]byte("1_report.txt"))
	assert.Equal(t, hex.EncodeToString(want0[:]), ids[0])
	assert.Equal(t, hex.EncodeToString(want1[:]), ids[1])

	for i, frag := range labeled {
		assert.Equal(t, "report.txt", frag.Metadata["name"])
		assert.Equal(t, i, frag.Metadata["chunk_id"])
		assert.Equal(t, int64(1700000000000000), frag.Metadata["timestamp"])
		assert.Equal(t, fragments[i].Content, frag.Content)
		assert.Equal(t, fragments[i].StartOffset, frag.StartOffset)
	}
}

func TestLabel_Deterministic(t *testing.T) {
	fragments := []models.Fragment{{Content: "alpha"}, {Content: "beta"}}

	first, _ := labeler.Label(fragments, "報告書.pdf", 1)
	second, _ := labeler.Label(fragments, "報告書.pdf", 2)

	// ids depend on position and name only, not on timestamp or content
	assert.Equal(t, first, second)
}

func TestLabel_NonASCIINameYieldsASCIIIDs(t *testing.T) {
	ids, _ := labeler.Label([]models.Fragment{{Content: "x"}}, "建築基準法施行令.pdf", 1)
	require.Len(t, ids, 1)
	assert.Regexp(t, "^[0-9a-f]{64}$", ids[0])
}

func TestLabel_Empty(t *testing.T) {
	ids, labeled := labeler.Label(nil, "report.txt", 1)
	assert.Empty(t, ids)
	assert.Empty(t, labeled)
}
