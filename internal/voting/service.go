package voting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opCastVote = "voting.cast_vote"

// Vote outcomes reported to the OutcomeRecorder.
const (
	OutcomeAccepted = "accepted"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
)

var (
	errMissingDatabase   = errors.New("voting: database connection required")
	errMissingIDProvider = errors.New("voting: id provider required")
	errAlreadyVoted      = apperr.Conflict("already_voted", "already voted")
)

// OutcomeRecorder observes the outcome of every vote attempt.
type OutcomeRecorder interface {
	ObserveVote(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveVote(string) {}

// ServiceConfig describes the dependencies of the voting service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
	Recorder   OutcomeRecorder
}

// Service casts ballots.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	ids      ids.Provider
	logger   *zap.Logger
	recorder OutcomeRecorder
}

// NewService constructs the voting service.
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
	var recorder OutcomeRecorder = noopRecorder{}
	if cfg.Recorder != nil {
		recorder = cfg.Recorder
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		ids:      cfg.IDProvider,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// CastVote records the one ballot voterID may cast. The has_voted flag short-circuits repeat
// attempts; racing attempts that pass it are stopped by the unique voter index, and both paths
// surface the same conflict.
func (s *Service) CastVote(ctx context.Context, voterID, candidateID string) (Ballot, error) {
	ballot, err := s.castVote(ctx, strings.TrimSpace(voterID), strings.TrimSpace(candidateID))
	switch {
	case err == nil:
		s.recorder.ObserveVote(OutcomeAccepted)
		s.logger.Info("vote recorded",
			zap.String("voter_id", ballot.VoterID),
			zap.String("candidate_id", ballot.CandidateID))
	case apperr.IsKind(err, apperr.KindConflict):
		s.recorder.ObserveVote(OutcomeConflict)
		s.logger.Info("vote rejected as duplicate", zap.String("voter_id", voterID))
	default:
		s.recorder.ObserveVote(OutcomeRejected)
	}
	return ballot, err
}

func (s *Service) castVote(ctx context.Context, voterID, candidateID string) (Ballot, error) {
	if candidateID == "" {
		return Ballot{}, apperr.Validation("missing_candidate", "candidateId is required")
	}
	if voterID == "" {
		return Ballot{}, apperr.NotFound("user_not_found", "user not found")
	}

	var recorded Ballot
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var voter users.User
		err := tx.Where("id = ?", voterID).Take(&voter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user_not_found", "user not found")
		}
		if err != nil {
			s.logError("voter_lookup_failed", err, zap.String("voter_id", voterID))
			return apperr.Internal("vote_failed", err)
		}
		if voter.HasVoted {
			return errAlreadyVoted
		}

		var candidate catalog.Candidate
		err = tx.Where("id = ?", candidateID).Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("invalid_candidate", "invalid candidate")
		}
		if err != nil {
			s.logError("candidate_lookup_failed", err, zap.String("candidate_id", candidateID))
			return apperr.Internal("vote_failed", err)
		}

		ballotID, err := s.ids.NewID()
		if err != nil {
			s.logError("id_generation_failed", err)
			return apperr.Internal("vote_failed", err)
		}
		now := s.now().UTC()
		ballot := Ballot{
			ID:          ballotID,
			VoterID:     voter.ID,
			CandidateID: candidate.ID,
			TeamID:      candidate.TeamID,
			CastAt:      now,
		}
		if err := tx.Create(&ballot).Error; err != nil {
			if isDuplicateKey(err) {
				return errAlreadyVoted
			}
			s.logError("ballot_insert_failed", err, zap.String("voter_id", voterID))
			return apperr.Internal("vote_failed", err)
		}

		result := tx.Model(&users.User{}).
			Where("id = ? AND has_voted = ?", voter.ID, false).
			Updates(map[string]any{
				"has_voted":          true,
				"voted_candidate_id": candidate.ID,
				"updated_at":         now,
			})
		if result.Error != nil {
			s.logError("voter_update_failed", result.Error, zap.String("voter_id", voterID))
			return apperr.Internal("vote_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return errAlreadyVoted
		}
		recorded = ballot
		return nil
	})
	if txErr != nil {
		return Ballot{}, txErr
	}
	return recorded, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Service) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opCastVote),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("voting service error", attrs...)
}
