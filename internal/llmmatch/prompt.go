package llmmatch

import (
	"fmt"
	"strings"

	"github.com/finbuch/matchcore/internal/model"
)

const systemPrompt = `You are a recruiting assistant for a German finance and accounting staffing firm. Evaluate how well a candidate fits a job opening. Respond ONLY with a JSON object matching this shape:
{"score": 0.0-1.0, "recommendation": "vorstellen"|"beobachten"|"nicht_passend", "explanation": "...", "strengths": ["..."], "weaknesses": ["..."], "wow": false, "wow_reason": ""}
Never include personally identifying details (names, emails, phone numbers, exact addresses) in your response, even if present in the input.`

// formatPrompt builds the evaluation prompt from de-identified candidate
// and job fields only, per spec.md's no-PII-to-LLM rule (spec.md §9).
func formatPrompt(candidate model.Candidate, job model.Job) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Job: %s at a %s company (seniority level %d/6, quality=%s, city=%s)\n",
		job.Position, job.Industry, job.SeniorityLevel, job.Quality, job.City)
	if job.FreeText != "" {
		fmt.Fprintf(&b, "Job description: %s\n", job.FreeText)
	}
	fmt.Fprintf(&b, "Required skills: %s\n\n", formatSkills(job.RequiredSkills))

	fmt.Fprintf(&b, "Candidate role: %s, seniority level %d/6, trajectory=%s, %.1f years experience, city=%s\n",
		candidate.RoleKey, candidate.SeniorityLevel, candidate.Trajectory, candidate.YearsExperience, candidate.City)
	fmt.Fprintf(&b, "Candidate skills: %s\n", strings.Join(candidate.Skills, ", "))
	if candidate.CurrentRoleSummary != "" {
		fmt.Fprintf(&b, "Current role summary: %s\n", truncate(candidate.CurrentRoleSummary, 800))
	}

	b.WriteString("\nEvaluate the fit and return the JSON verdict described above.")
	return b.String()
}

func formatSkills(skills []model.StructuredSkill) string {
	parts := make([]string, 0, len(skills))
	for _, s := range skills {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Skill, s.Importance))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
