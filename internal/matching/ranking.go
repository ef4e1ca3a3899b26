package matching

import (
	"sort"

	"jobMatch/internal/database"
)

// summarizeOffer 构造职位摘要；职位已被删除时只保留 ID。
func summarizeOffer(offerID uint, offer *database.JobOffer) OfferSummary {
	summary := OfferSummary{ID: offerID}
	if offer == nil {
		return summary
	}
	summary.Title = offer.Title
	summary.Location = offer.Location
	summary.ContractType = offer.ContractType
	summary.TechnicalSkills = nonNil(offer.TechnicalSkills)
	summary.SoftSkills = nonNil(offer.SoftSkills)
	if offer.Entreprise != nil {
		summary.CompanyName = offer.Entreprise.Name
		summary.CompanyLogoURL = offer.Entreprise.LogoURL
	}
	return summary
}

// rankResults 将存储中的结果转换为按分数降序排列的响应。
func rankResults(results []database.MatchResult) []RankedMatch {
	ranked := make([]RankedMatch, 0, len(results))
	for i := range results {
		r := &results[i]
		ranked = append(ranked, RankedMatch{
			Offer:        summarizeOffer(r.JobOfferID, r.JobOffer),
			MatchScore:   r.MatchScore,
			Explanations: nonNil(r.Explanations),
		})
	}
	sortByScore(ranked)
	return ranked
}

// sortByScore 按分数降序排序，分数相同时保持原有顺序。
func sortByScore(ranked []RankedMatch) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MatchScore > ranked[j].MatchScore
	})
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
