// Package voting records ballots and enforces that each user votes at most once.
package voting

import "time"

// Ballot is the single vote of one user. The unique index on voter_id is the vote-once invariant.
type Ballot struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	VoterID     string    `gorm:"column:voter_id;size:64;not null;uniqueIndex:idx_ballots_voter"`
	CandidateID string    `gorm:"column:candidate_id;size:64;not null;index:idx_ballots_candidate"`
	TeamID      string    `gorm:"column:team_id;size:64;not null"`
	CastAt      time.Time `gorm:"column:cast_at;not null"`
}

// TableName binds the model to the ballots table.
func (Ballot) TableName() string {
	return "ballots"
}
