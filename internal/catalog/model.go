// Package catalog stores the teams and candidates that can receive votes.
package catalog

import "time"

// CandidateOrder is the catalog order used by every candidate listing and by the winner tie-break.
const CandidateOrder = "sort_order ASC, created_at ASC, id ASC"

const teamOrder = "sort_order ASC, name ASC"

// Team groups candidates. Teams are created by seeding and are read-only to users.
type Team struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	Name        string    `gorm:"column:name;size:200;not null;uniqueIndex:idx_teams_name"`
	Description string    `gorm:"column:description;size:300"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	SortOrder   int       `gorm:"column:sort_order;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName binds the model to the teams table.
func (Team) TableName() string {
	return "teams"
}

// Candidate is a votable entry owned by exactly one team.
type Candidate struct {
	ID           string    `gorm:"column:id;primaryKey;size:64"`
	Name         string    `gorm:"column:name;size:200;not null"`
	Description  string    `gorm:"column:description;size:500;not null"`
	LinkedInURL  string    `gorm:"column:linkedin_url;size:1024;not null"`
	ProfileImage string    `gorm:"column:profile_image;size:2048"`
	TeamID       string    `gorm:"column:team_id;size:64;not null;index:idx_candidates_team"`
	SortOrder    int       `gorm:"column:sort_order;not null;index:idx_candidates_order"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName binds the model to the candidates table.
func (Candidate) TableName() string {
	return "candidates"
}

// CandidateView is the public projection of a candidate.
type CandidateView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	LinkedInURL  string `json:"linkedinUrl"`
	ProfileImage string `json:"profileImage,omitempty"`
	TeamID       string `json:"teamId"`
}

// TeamView is an active team with its candidates in catalog order.
type TeamView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Candidates  []CandidateView `json:"candidates"`
}

// View projects the candidate for clients.
func (c Candidate) View() CandidateView {
	return CandidateView{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		LinkedInURL:  c.LinkedInURL,
		ProfileImage: c.ProfileImage,
		TeamID:       c.TeamID,
	}
}
