package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Job is a finance/accounting job opening.
type Job struct {
	ID uuid.UUID `json:"id"`

	GeoPoint   *GeoPoint `json:"geo_point,omitempty"`
	PostalCode string    `json:"postal_code"`
	City       string    `json:"city"`

	Position string `json:"position"`
	Company  string `json:"company"`
	FreeText string `json:"free_text"`
	Category string `json:"category"`

	RoleKey        RoleKey   `json:"role_key"`
	SecondaryRoles []RoleKey `json:"secondary_roles,omitempty"`
	Classification map[string]any `json:"classification,omitempty"`
	Quality        JobQuality `json:"quality"`

	RequiredSkills []StructuredSkill `json:"required_skills,omitempty"`
	RoleEmbedding  *pgvector.Vector  `json:"-"`

	SeniorityLevel  int             `json:"seniority_level"` // 1-6
	Industry        string          `json:"industry,omitempty"`
	CompanySize     string          `json:"company_size,omitempty"`
	EmploymentType  string          `json:"employment_type,omitempty"`
	WorkArrangement WorkArrangement `json:"work_arrangement,omitempty"`

	V2ProfileCreatedAt *time.Time `json:"v2_profile_created_at,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`

	CRMSyncedAt      *time.Time `json:"crm_synced_at,omitempty"`
	CategorizedAt    *time.Time `json:"categorized_at,omitempty"`
	ClassificationAt *time.Time `json:"classification_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the job may be matched against (spec.md §3:
// "not soft-deleted, not expired, and quality ∈ {high, medium}").
func (j Job) Eligible(now time.Time) bool {
	if j.DeletedAt != nil {
		return false
	}
	if j.ExpiresAt != nil && j.ExpiresAt.Before(now) {
		return false
	}
	return j.Quality == QualityHigh || j.Quality == QualityMedium
}

// RoleEmbeddingVector decodes the stored pgvector column, or nil if absent.
func (j Job) RoleEmbeddingVector() []float32 {
	if j.RoleEmbedding == nil {
		return nil
	}
	return j.RoleEmbedding.Slice()
}

// RequiredSkillNames flattens RequiredSkills into a plain string list,
// used by the software_match component which only needs skill names.
func (j Job) RequiredSkillNames() []string {
	out := make([]string, 0, len(j.RequiredSkills))
	for _, s := range j.RequiredSkills {
		out = append(out, s.Skill)
	}
	return out
}

// Category is the hotlist category a job belongs to. The matching core
// presently recognizes only FINANCE; other categories pass through
// untouched but are not targeted by the batch drivers' "all eligible
// category=FINANCE jobs" convenience query.
const CategoryFinance = "FINANCE"
