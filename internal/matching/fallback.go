package matching

import (
	"jobMatch/internal/database"
)

// fallbackScore 将 [0,1) 的随机数映射到 [30,100)。
func fallbackScore(r float64) float64 {
	return 30 + r*70
}

// fallbackExplanations 根据职位自身字段生成三条优势与三条不足。
func fallbackExplanations(offer *database.JobOffer) []string {
	explanations := make([]string, 0, 6)

	if len(offer.TechnicalSkills) > 0 {
		explanations = append(explanations, "The candidate has solid experience in "+offer.TechnicalSkills[0])
	} else {
		explanations = append(explanations, "The candidate has solid experience in software development")
	}

	explanations = append(explanations, "The candidate's education matches the required level")

	if len(offer.SoftSkills) > 0 {
		explanations = append(explanations, "The candidate has demonstrated skills in "+offer.SoftSkills[0])
	} else {
		explanations = append(explanations, "The candidate has demonstrated skills in teamwork")
	}

	explanations = append(explanations, "The candidate lacks experience with some of the required technologies")

	if len(offer.Certifications) > 0 {
		explanations = append(explanations, "The candidate does not hold the "+offer.Certifications[0]+" certification")
	} else {
		explanations = append(explanations, "The candidate does not hold all of the requested certifications")
	}

	explanations = append(explanations, "The candidate's experience is slightly below what is expected")

	return explanations
}

// placeholderSkills 在技能提取失败时返回的固定摘要。
func placeholderSkills() Skills {
	return Skills{
		TechnicalSkills: []string{"Java", "Spring Boot", "React", "SQL"},
		SoftSkills:      []string{"Communication", "Teamwork", "Problem solving"},
		Experience:      "3 years of web development experience",
		Education:       "Master's degree in Computer Science",
		Certifications:  []string{"Oracle Certified Java Developer"},
	}
}
