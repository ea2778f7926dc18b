package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/fabula/internal/model"
)

// minClaimLength is the longest fragment (in characters) that is still discarded
const minClaimLength = 5

// SplitClaims breaks a backstory into atomic claims.
//
// It splits on every period, trims whitespace and drops fragments of five
// characters or fewer. This is deliberately coarse: abbreviations and decimal
// numbers produce spurious splits, which the evidence aggregation tolerates.
func SplitClaims(backstory string) []model.Claim {
	var claims []model.Claim
	for _, fragment := range strings.Split(backstory, ".") {
		text := strings.TrimSpace(fragment)
		if utf8.RuneCountInString(text) <= minClaimLength {
			continue
		}
		claims = append(claims, model.Claim{
			Text:     text,
			Position: len(claims),
		})
	}
	return claims
}

// ClaimTexts returns the text of each claim in order
func ClaimTexts(claims []model.Claim) []string {
	texts := make([]string, len(claims))
	for i, c := range claims {
		texts[i] = c.Text
	}
	return texts
}
