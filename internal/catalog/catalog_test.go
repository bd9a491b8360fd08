package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRarityRank(t *testing.T) {
	assert.Equal(t, 1, RarityRank("Secret Rare"))
	assert.Equal(t, 9, RarityRank("Common"))
	assert.Equal(t, LowestRank, RarityRank("Promo Holo Foil"))
	assert.Equal(t, LowestRank, RarityRank(""))
}

func TestRanksAreUnique(t *testing.T) {
	seen := make(map[int]string, len(RarityPriority))
	for rarity, rank := range RarityPriority {
		if prev, dup := seen[rank]; dup {
			t.Fatalf("rank %d shared by %q and %q", rank, prev, rarity)
		}
		seen[rank] = rarity
	}
}
