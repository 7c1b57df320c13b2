// Package tally computes vote results on demand from the ballot store and the catalog.
package tally

import (
	"context"
	"errors"
	"sort"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/voting"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("tally: database connection required")

// Entry pairs a candidate with its ballot count.
type Entry struct {
	Candidate catalog.CandidateView `json:"candidate"`
	Votes     int64                 `json:"votes"`
}

// Results lists every candidate in catalog order. Winner is nil for an empty catalog.
type Results struct {
	Entries []Entry `json:"results"`
	Winner  *Entry  `json:"winner"`
}

// CandidateCount is the ballot count of a candidate that received at least one vote.
type CandidateCount struct {
	CandidateID string `json:"candidateId"`
	Votes       int64  `json:"votes"`
}

// Voter is the public projection of a user who has voted.
type Voter struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	LinkedInProfileURL string `json:"linkedinProfileUrl,omitempty"`
	LinkedInEmail      string `json:"linkedinEmail,omitempty"`
	LinkedInPicture    string `json:"linkedinPicture,omitempty"`
}

// ServiceConfig describes the dependencies of the tally service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service aggregates ballots. Every call reads current storage; nothing is cached.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the tally service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// ComputeResults counts ballots per candidate, including zeros, and picks the winner. Ties go
// to the candidate that comes first in catalog order.
func (s *Service) ComputeResults(ctx context.Context) (Results, error) {
	var candidates []catalog.Candidate
	if err := s.db.WithContext(ctx).Order(catalog.CandidateOrder).Find(&candidates).Error; err != nil {
		s.logError("tally.compute_results", "candidate_query_failed", err)
		return Results{}, apperr.Internal("results_unavailable", err)
	}
	counts, err := s.countBallots(ctx)
	if err != nil {
		s.logError("tally.compute_results", "ballot_query_failed", err)
		return Results{}, apperr.Internal("results_unavailable", err)
	}

	byCandidate := make(map[string]int64, len(counts))
	for _, count := range counts {
		byCandidate[count.CandidateID] = count.Votes
	}
	entries := make([]Entry, 0, len(candidates))
	for _, candidate := range candidates {
		entries = append(entries, Entry{Candidate: candidate.View(), Votes: byCandidate[candidate.ID]})
	}
	return Results{Entries: entries, Winner: pickWinner(entries)}, nil
}

// VoteCounts returns ballot counts for candidates with at least one vote, ordered by candidate id.
func (s *Service) VoteCounts(ctx context.Context) ([]CandidateCount, error) {
	counts, err := s.countBallots(ctx)
	if err != nil {
		s.logError("tally.vote_counts", "ballot_query_failed", err)
		return nil, apperr.Internal("results_unavailable", err)
	}
	return counts, nil
}

// VotedUsers lists the users who have voted, projected to public fields.
func (s *Service) VotedUsers(ctx context.Context) ([]Voter, error) {
	var voted []users.User
	if err := s.db.WithContext(ctx).
		Select("id", "name", "linkedin_profile_url", "linkedin_email", "linkedin_picture").
		Where("has_voted = ?", true).
		Order("created_at ASC, id ASC").
		Find(&voted).Error; err != nil {
		s.logError("tally.voted_users", "query_failed", err)
		return nil, apperr.Internal("results_unavailable", err)
	}
	voters := make([]Voter, 0, len(voted))
	for _, user := range voted {
		voters = append(voters, Voter{
			ID:                 user.ID,
			Name:               user.Name,
			LinkedInProfileURL: user.LinkedInProfileURL,
			LinkedInEmail:      user.LinkedInEmail,
			LinkedInPicture:    user.LinkedInPicture,
		})
	}
	return voters, nil
}

func (s *Service) countBallots(ctx context.Context) ([]CandidateCount, error) {
	counts := []CandidateCount{}
	err := s.db.WithContext(ctx).
		Model(&voting.Ballot{}).
		Select("candidate_id, COUNT(*) AS votes").
		Group("candidate_id").
		Order("candidate_id ASC").
		Scan(&counts).Error
	return counts, err
}

func pickWinner(entries []Entry) *Entry {
	if len(entries) == 0 {
		return nil
	}
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})
	winner := ranked[0]
	return &winner
}

func (s *Service) logError(operation, reason string, err error) {
	s.logger.Error("tally service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
}
