package sqlx

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS learner_progress (
		learner_id VARCHAR(128) PRIMARY KEY,
		total_xp BIGINT NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
		level INTEGER NOT NULL DEFAULT 1,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_activity_date VARCHAR(10),
		spins INTEGER NOT NULL DEFAULT 0 CHECK (spins >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS xp_events (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		learner_id VARCHAR(128) NOT NULL REFERENCES learner_progress(learner_id),
		event_kind VARCHAR(64) NOT NULL,
		xp_awarded BIGINT NOT NULL CHECK (xp_awarded >= 0),
		metadata TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS xp_events_learner_kind ON xp_events (learner_id, event_kind)`,
	`CREATE TABLE IF NOT EXISTS achievement_unlocks (
		learner_id VARCHAR(128) NOT NULL,
		achievement_id VARCHAR(128) NOT NULL,
		unlocked_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (learner_id, achievement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS mission_progress (
		learner_id VARCHAR(128) NOT NULL,
		mission_id VARCHAR(128) NOT NULL,
		window_start VARCHAR(10) NOT NULL,
		progress_count INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		claimed BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (learner_id, mission_id),
		CHECK (NOT claimed OR completed)
	)`,
	`CREATE TABLE IF NOT EXISTS card_collection (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		learner_id VARCHAR(128) NOT NULL,
		card_id VARCHAR(128) NOT NULL,
		source VARCHAR(64) NOT NULL,
		obtained_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS card_collection_learner_card ON card_collection (learner_id, card_id)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS learner_progress (
		learner_id VARCHAR(128) PRIMARY KEY,
		total_xp BIGINT NOT NULL DEFAULT 0,
		level INT NOT NULL DEFAULT 1,
		current_streak INT NOT NULL DEFAULT 0,
		longest_streak INT NOT NULL DEFAULT 0,
		last_activity_date VARCHAR(10) NULL,
		spins INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS xp_events (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		learner_id VARCHAR(128) NOT NULL,
		event_kind VARCHAR(64) NOT NULL,
		xp_awarded BIGINT NOT NULL,
		metadata TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX xp_events_learner_kind (learner_id, event_kind)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS achievement_unlocks (
		learner_id VARCHAR(128) NOT NULL,
		achievement_id VARCHAR(128) NOT NULL,
		unlocked_at DATETIME(6) NOT NULL,
		PRIMARY KEY (learner_id, achievement_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS mission_progress (
		learner_id VARCHAR(128) NOT NULL,
		mission_id VARCHAR(128) NOT NULL,
		window_start VARCHAR(10) NOT NULL,
		progress_count INT NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		claimed BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (learner_id, mission_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS card_collection (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		learner_id VARCHAR(128) NOT NULL,
		card_id VARCHAR(128) NOT NULL,
		source VARCHAR(64) NOT NULL,
		obtained_at DATETIME(6) NOT NULL,
		INDEX card_collection_learner_card (learner_id, card_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.driver == DriverMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
