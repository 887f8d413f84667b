package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Candidate is a finance/accounting job-seeker profile. Identity is
// immutable; the profile (skills, classification, embeddings) is mutable
// and refreshed by the pipeline orchestrator's categorize/classify steps.
type Candidate struct {
	ID uuid.UUID `json:"id"`

	GeoPoint   *GeoPoint `json:"geo_point,omitempty"`
	PostalCode string    `json:"postal_code"`
	City       string    `json:"city"`

	RoleKey         RoleKey   `json:"role_key"`
	SecondaryRoles  []RoleKey `json:"secondary_roles,omitempty"`
	Classification  map[string]any `json:"classification,omitempty"`

	WorkHistory        []WorkHistoryEntry `json:"work_history,omitempty"`
	Education          string             `json:"education,omitempty"`
	FurtherEducation   string             `json:"further_education,omitempty"`
	Skills             []string           `json:"skills,omitempty"`
	ITSkills           []string           `json:"it_skills,omitempty"`
	ERPSystems         []string           `json:"erp_systems,omitempty"`
	Languages          []string           `json:"languages,omitempty"`
	StructuredSkills   []StructuredSkill  `json:"structured_skills,omitempty"`

	SeniorityLevel   int        `json:"seniority_level"` // 1-6
	Trajectory       Trajectory `json:"trajectory"`
	YearsExperience  float64    `json:"years_experience"`
	CurrentRoleSummary string   `json:"current_role_summary,omitempty"`

	// V2ProfileCreatedAt is set once the v2 profile enrichment pipeline
	// has run for this candidate; nil means the candidate is not yet
	// eligible for Layer 1 (spec.md §4.E, §4.F).
	V2ProfileCreatedAt *time.Time `json:"v2_profile_created_at,omitempty"`
	// HotlistCategory is the hotlist category (e.g. CategoryFinance) this
	// candidate was classified into, matched against a job's Category
	// when the job sets one.
	HotlistCategory string `json:"hotlist_category,omitempty"`

	CurrentRoleEmbedding *pgvector.Vector `json:"-"`
	FullHistoryEmbedding *pgvector.Vector `json:"-"`

	Hidden bool `json:"hidden"`

	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CRMSyncedAt        *time.Time `json:"crm_synced_at,omitempty"`
	CategorizedAt      *time.Time `json:"categorized_at,omitempty"`
	ClassificationAt   *time.Time `json:"classification_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Eligible reports whether the candidate may participate in matching
// (spec.md §3 invariant: "A candidate is eligible only if not hidden and
// not soft-deleted.").
func (c Candidate) Eligible() bool {
	return !c.Hidden && c.DeletedAt == nil
}

// CurrentEmbeddingVector decodes the stored pgvector column into a plain
// float32 slice, or nil if no embedding is present.
func (c Candidate) CurrentEmbeddingVector() []float32 {
	if c.CurrentRoleEmbedding == nil {
		return nil
	}
	v := c.CurrentRoleEmbedding.Slice()
	return v
}
