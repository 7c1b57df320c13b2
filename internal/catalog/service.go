package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListTeams      = "catalog.list_teams"
	opListCandidates = "catalog.list_candidates"
	opGetCandidate   = "catalog.get_candidate"
	opSeed           = "catalog.seed"

	// ballotsTable holds recorded votes. Reseeding is refused once it has rows.
	ballotsTable = "ballots"
)

var (
	errMissingDatabase   = errors.New("catalog: database connection required")
	errMissingIDProvider = errors.New("catalog: id provider required")
)

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service reads and seeds the team and candidate catalog.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	ids      ids.Provider
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		ids:      cfg.IDProvider,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// ListTeams returns active teams, each with its candidates in catalog order.
func (s *Service) ListTeams(ctx context.Context) ([]TeamView, error) {
	var teams []Team
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order(teamOrder).
		Find(&teams).Error; err != nil {
		s.logError(opListTeams, "team_query_failed", err)
		return nil, apperr.Internal("catalog_unavailable", err)
	}
	if len(teams) == 0 {
		return []TeamView{}, nil
	}

	teamIDs := make([]string, 0, len(teams))
	for _, team := range teams {
		teamIDs = append(teamIDs, team.ID)
	}
	var candidates []Candidate
	if err := s.db.WithContext(ctx).
		Where("team_id IN ?", teamIDs).
		Order(CandidateOrder).
		Find(&candidates).Error; err != nil {
		s.logError(opListTeams, "candidate_query_failed", err)
		return nil, apperr.Internal("catalog_unavailable", err)
	}

	byTeam := make(map[string][]CandidateView, len(teams))
	for _, candidate := range candidates {
		byTeam[candidate.TeamID] = append(byTeam[candidate.TeamID], candidate.View())
	}
	views := make([]TeamView, 0, len(teams))
	for _, team := range teams {
		members := byTeam[team.ID]
		if members == nil {
			members = []CandidateView{}
		}
		views = append(views, TeamView{
			ID:          team.ID,
			Name:        team.Name,
			Description: team.Description,
			Candidates:  members,
		})
	}
	return views, nil
}

// ListCandidates returns every candidate in catalog order.
func (s *Service) ListCandidates(ctx context.Context) ([]Candidate, error) {
	var candidates []Candidate
	if err := s.db.WithContext(ctx).Order(CandidateOrder).Find(&candidates).Error; err != nil {
		s.logError(opListCandidates, "query_failed", err)
		return nil, apperr.Internal("catalog_unavailable", err)
	}
	return candidates, nil
}

// GetCandidate loads one candidate.
func (s *Service) GetCandidate(ctx context.Context, candidateID string) (Candidate, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Candidate{}, apperr.NotFound("invalid_candidate", "invalid candidate")
	}
	var candidate Candidate
	err := s.db.WithContext(ctx).Where("id = ?", candidateID).Take(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Candidate{}, apperr.NotFound("invalid_candidate", "invalid candidate")
	}
	if err != nil {
		s.logError(opGetCandidate, "query_failed", err, zap.String("candidate_id", candidateID))
		return Candidate{}, apperr.Internal("catalog_unavailable", err)
	}
	return candidate, nil
}

// SeedResult reports what a seed run created.
type SeedResult struct {
	Teams      int
	Candidates int
}

// Seed replaces the catalog with teams. It refuses once any ballot has been cast, since ballots
// reference candidate ids.
func (s *Service) Seed(ctx context.Context, teams []TeamSeed) (SeedResult, error) {
	if err := s.validateSeed(teams); err != nil {
		return SeedResult{}, err
	}

	result := SeedResult{}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Migrator().HasTable(ballotsTable) {
			var ballots int64
			if err := tx.Table(ballotsTable).Count(&ballots).Error; err != nil {
				s.logError(opSeed, "ballot_count_failed", err)
				return apperr.Internal("seed_failed", err)
			}
			if ballots > 0 {
				return apperr.Conflict("ballots_exist", "catalog cannot be reseeded after votes were cast")
			}
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Candidate{}).Error; err != nil {
			s.logError(opSeed, "candidate_clear_failed", err)
			return apperr.Internal("seed_failed", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Team{}).Error; err != nil {
			s.logError(opSeed, "team_clear_failed", err)
			return apperr.Internal("seed_failed", err)
		}

		now := s.now().UTC()
		candidateOrder := 0
		for teamIndex, seed := range teams {
			teamID, err := s.ids.NewID()
			if err != nil {
				s.logError(opSeed, "id_generation_failed", err)
				return apperr.Internal("seed_failed", err)
			}
			team := Team{
				ID:          teamID,
				Name:        strings.TrimSpace(seed.Name),
				Description: strings.TrimSpace(seed.Description),
				IsActive:    !seed.Inactive,
				SortOrder:   teamIndex,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&team).Error; err != nil {
				s.logError(opSeed, "team_insert_failed", err, zap.String("team", team.Name))
				return apperr.Internal("seed_failed", err)
			}
			result.Teams++

			for _, candidateSeed := range seed.Candidates {
				candidateID, err := s.ids.NewID()
				if err != nil {
					s.logError(opSeed, "id_generation_failed", err)
					return apperr.Internal("seed_failed", err)
				}
				candidate := Candidate{
					ID:           candidateID,
					Name:         strings.TrimSpace(candidateSeed.Name),
					Description:  strings.TrimSpace(candidateSeed.Description),
					LinkedInURL:  strings.TrimSpace(candidateSeed.LinkedInURL),
					ProfileImage: strings.TrimSpace(candidateSeed.ProfileImage),
					TeamID:       team.ID,
					SortOrder:    candidateOrder,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := tx.Create(&candidate).Error; err != nil {
					s.logError(opSeed, "candidate_insert_failed", err, zap.String("candidate", candidate.Name))
					return apperr.Internal("seed_failed", err)
				}
				candidateOrder++
				result.Candidates++
			}
		}
		return nil
	})
	if txErr != nil {
		return SeedResult{}, txErr
	}
	s.logger.Info("catalog seeded", zap.Int("teams", result.Teams), zap.Int("candidates", result.Candidates))
	return result, nil
}

func (s *Service) validateSeed(teams []TeamSeed) error {
	if len(teams) == 0 {
		return apperr.Validation("empty_seed", "at least one team is required")
	}
	seen := make(map[string]struct{}, len(teams))
	for index, team := range teams {
		if err := s.validate.Struct(team); err != nil {
			return apperr.Wrap(apperr.KindValidation, "invalid_seed", fmt.Sprintf("team %d is invalid", index), err)
		}
		key := strings.ToLower(strings.TrimSpace(team.Name))
		if _, duplicate := seen[key]; duplicate {
			return apperr.Validation("invalid_seed", fmt.Sprintf("team name %q is used more than once", team.Name))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("catalog service error", attrs...)
}
