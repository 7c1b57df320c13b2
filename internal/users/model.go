package users

import "time"

// User is the canonical account record. Linked provider identities are stored as flat
// prefixed columns so a user carries at most one Google and one LinkedIn identity.
type User struct {
	ID                       string     `gorm:"column:id;primaryKey;size:64"`
	Name                     string     `gorm:"column:name;size:200;not null"`
	Email                    string     `gorm:"column:email;size:320;index:idx_users_email"`
	PasswordHash             string     `gorm:"column:password_hash;size:255"`
	GoogleID                 string     `gorm:"column:google_id;size:190;index:idx_users_google_id"`
	GoogleEmail              string     `gorm:"column:google_email;size:320;index:idx_users_google_email"`
	LinkedInID               string     `gorm:"column:linkedin_id;size:190"`
	LinkedInEmail            string     `gorm:"column:linkedin_email;size:320;index:idx_users_linkedin_email"`
	LinkedInProfileSearchURL string     `gorm:"column:linkedin_profile_search_url;size:1024"`
	LinkedInPicture          string     `gorm:"column:linkedin_picture;size:2048"`
	LinkedInProfileURL       string     `gorm:"column:linkedin_profile_url;size:1024"`
	HasVoted                 bool       `gorm:"column:has_voted;not null"`
	VotedCandidateID         *string    `gorm:"column:voted_candidate_id;size:64"`
	ResetTokenHash           string     `gorm:"column:reset_token_hash;size:64;index:idx_users_reset_token"`
	ResetTokenExpiresAt      *time.Time `gorm:"column:reset_token_expires_at"`
	CreatedAt                time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt                time.Time  `gorm:"column:updated_at;not null"`
}

// TableName binds the model to the users table.
func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can sign in with email and password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}
