// Package catalog holds static reference data for the watch list: the card
// names and sets worth scraping, and the rarity ranking used to prioritise
// opportunities. This data is configuration, not derived state.
package catalog

// PriorityCards is the default scrape watch list.
var PriorityCards = []string{
	// Recent high-value ex cards
	"Charizard ex",
	"Pikachu ex",
	"Mew ex",
	"Umbreon ex",
	"Greninja ex",

	// Popular VMAX/VSTAR
	"Charizard VMAX",
	"Charizard VSTAR",
	"Giratina VSTAR",
	"Arceus VSTAR",

	// Vintage chase cards
	"Charizard Base Set",
	"Blastoise Base Set",
	"Venusaur Base Set",

	// Popular trainers
	"Lillie Full Art",
	"Professor's Research",
	"Boss's Orders",
}

// PrioritySets lists the sets the metadata source covers well.
var PrioritySets = []string{
	// Sword & Shield era
	"Crown Zenith",
	"Silver Tempest",
	"Lost Origin",
	"Brilliant Stars",
	"Evolving Skies",

	// Sun & Moon
	"Cosmic Eclipse",
	"Hidden Fates",

	// Vintage
	"Base Set",
	"Jungle",
	"Fossil",
}

// RarityPriority maps a rarity to its priority rank. Lower rank means higher
// priority when scoring opportunities.
var RarityPriority = map[string]int{
	"Secret Rare":               1,
	"Hyper Rare":                2,
	"Ultra Rare":                3,
	"Special Illustration Rare": 4,
	"Rainbow Rare":              5,
	"Full Art":                  6,
	"Rare":                      7,
	"Uncommon":                  8,
	"Common":                    9,
}

// LowestRank is the rank assigned to unknown or missing rarities.
const LowestRank = 9

// RarityRank resolves a rarity string to its priority rank. Unknown rarities
// sort with Common.
func RarityRank(rarity string) int {
	if rank, ok := RarityPriority[rarity]; ok {
		return rank
	}
	return LowestRank
}
