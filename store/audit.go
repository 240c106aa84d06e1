package store

import (
	"database/sql"
	"time"

	"remindbot/models"

	_ "github.com/mattn/go-sqlite3"
)

// AuditLog records command attempts and delivery attempts in sqlite.
type AuditLog struct {
	db *sql.DB
}

func OpenAuditLog(dbPath string) (*AuditLog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	a := &AuditLog{db: db}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *AuditLog) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		command TEXT NOT NULL,
		user_id TEXT NOT NULL,
		guild_id TEXT,
		permission TEXT,
		success BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS delivery_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reminder_id TEXT NOT NULL,
		owner_user_id TEXT NOT NULL,
		guild_id TEXT,
		destination TEXT NOT NULL,
		channel_id TEXT,
		failure TEXT,
		error TEXT,
		missed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_command_log_time ON command_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_delivery_log_time ON delivery_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_delivery_log_reminder ON delivery_log(reminder_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	return a.runMigrations()
}

func (a *AuditLog) runMigrations() error {
	var count int

	// reason was added after the first release of command_log
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('command_log') WHERE name='reason'`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := a.db.Exec(`ALTER TABLE command_log ADD COLUMN reason TEXT`); err != nil {
			return err
		}
	}
	return nil
}

func (a *AuditLog) Close() error {
	return a.db.Close()
}

func (a *AuditLog) RecordCommand(rec models.CommandRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := a.db.Exec(`
		INSERT INTO command_log (command, user_id, guild_id, permission, success, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Command, rec.UserID, rec.GuildID, rec.Permission, rec.Success, rec.Reason, rec.CreatedAt.UTC())
	return err
}

// RecordDelivery stores one row per destination attempt of the outcome.
func (a *AuditLog) RecordDelivery(reminder models.Reminder, outcome models.DeliveryOutcome) error {
	at := outcome.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, attempt := range outcome.Attempts {
		_, err := tx.Exec(`
			INSERT INTO delivery_log (reminder_id, owner_user_id, guild_id, destination, channel_id, failure, error, missed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, reminder.ID, reminder.OwnerUserID, reminder.GuildID, attempt.Destination, attempt.ChannelID,
			attempt.Failure, attempt.Error, outcome.Missed, at.UTC())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *AuditLog) RecentCommands(limit int) ([]models.CommandRecord, error) {
	rows, err := a.db.Query(`
		SELECT id, command, user_id, COALESCE(guild_id, ''), COALESCE(permission, ''), success, COALESCE(reason, ''), created_at
		FROM command_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.CommandRecord{}
	for rows.Next() {
		var r models.CommandRecord
		err := rows.Scan(&r.ID, &r.Command, &r.UserID, &r.GuildID, &r.Permission, &r.Success, &r.Reason, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (a *AuditLog) RecentDeliveries(limit int) ([]models.DeliveryRecord, error) {
	rows, err := a.db.Query(`
		SELECT id, reminder_id, owner_user_id, COALESCE(guild_id, ''), destination, COALESCE(channel_id, ''),
			COALESCE(failure, ''), COALESCE(error, ''), missed, created_at
		FROM delivery_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.DeliveryRecord{}
	for rows.Next() {
		var r models.DeliveryRecord
		err := rows.Scan(&r.ID, &r.ReminderID, &r.OwnerUserID, &r.GuildID, &r.Destination, &r.ChannelID,
			&r.Failure, &r.Error, &r.Missed, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes entries older than before and returns how many rows went.
func (a *AuditLog) Prune(before time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"command_log", "delivery_log"} {
		res, err := a.db.Exec(`DELETE FROM `+table+` WHERE created_at < ?`, before.UTC())
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
