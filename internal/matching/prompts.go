package matching

import (
	"strings"

	"jobMatch/internal/database"
)

// BuildOfferText 把职位字段拼成交给评分后端的纯文本。
func BuildOfferText(offer *database.JobOffer) string {
	var b strings.Builder
	b.WriteString("Title: " + offer.Title + "\n")
	b.WriteString("Description: " + offer.Description + "\n")
	b.WriteString("Required technical skills: " + strings.Join(offer.TechnicalSkills, ", ") + "\n")
	b.WriteString("Required soft skills: " + strings.Join(offer.SoftSkills, ", ") + "\n")
	b.WriteString("Education: " + offer.Education + "\n")
	b.WriteString("Desired experience: " + offer.DesiredExperience + "\n")
	b.WriteString("Required certifications: " + strings.Join(offer.Certifications, ", ") + "\n")
	return b.String()
}

func scorePrompt(cvText, offerText string) string {
	return "Compute the match score (from 0 to 100) between the following CV and job offer. " +
		"Answer only with an integer between 0 and 100. The higher the score, the stronger the match.\n\n" +
		"CV:\n" + cvText + "\n\n" +
		"Job offer:\n" + offerText
}

func explainPrompt(cvText, offerText string) string {
	return "Explain why this CV does or does not match this job offer. " +
		"Give 3 strengths and 3 weaknesses. Answer as a list where every line starts with a dash.\n\n" +
		"CV:\n" + cvText + "\n\n" +
		"Job offer:\n" + offerText
}

func skillsPrompt(cvText string) string {
	return "Extract the technical skills, soft skills, professional experience, education and certifications " +
		"from the following CV. Answer only in JSON with the keys 'technicalSkills', 'softSkills', " +
		"'experience', 'education' and 'certifications'. Here is the CV:\n\n" + cvText
}
