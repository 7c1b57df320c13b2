package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeEmails     = "2026-09-14_normalize_user_emails"
	migrationBackfillPrimaryMail = "2026-09-14_backfill_primary_email"
	migrationSyncVoteFlags       = "2026-10-02_sync_vote_flags_from_ballots"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeEmails, apply: normalizeEmails},
		{name: migrationBackfillPrimaryMail, apply: backfillPrimaryEmail},
		{name: migrationSyncVoteFlags, apply: syncVoteFlags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Emails are merge keys and are compared after trimming and lower-casing.
func normalizeEmails(db *gorm.DB) error {
	for _, column := range []string{"email", "google_email", "linkedin_email"} {
		if err := db.Model(&users.User{}).
			Where(column+" <> LOWER(TRIM("+column+"))").
			Update(column, gorm.Expr("LOWER(TRIM("+column+"))")).Error; err != nil {
			return err
		}
	}
	return nil
}

func backfillPrimaryEmail(db *gorm.DB) error {
	if err := db.Model(&users.User{}).
		Where("email = '' AND google_email <> ''").
		Update("email", gorm.Expr("google_email")).Error; err != nil {
		return err
	}
	return db.Model(&users.User{}).
		Where("email = '' AND linkedin_email <> ''").
		Update("email", gorm.Expr("linkedin_email")).Error
}

// A ballot is authoritative over the user flag it should have set.
func syncVoteFlags(db *gorm.DB) error {
	return db.Exec(`UPDATE users
SET has_voted = TRUE,
    voted_candidate_id = (SELECT candidate_id FROM ballots WHERE ballots.voter_id = users.id)
WHERE id IN (SELECT voter_id FROM ballots) AND (has_voted = FALSE OR voted_candidate_id IS NULL)`).Error
}
