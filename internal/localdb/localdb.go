package localdb

import (
	"database/sql"
	"fmt"

	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		logger.Error("Failed to create settings table", zap.Error(err))
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	DBClient = db
	logger.Info("Local database ready", zap.String("path", dbPath))
	return db, nil
}

// CloseDB closes the shared connection so SetupDB can open a new one.
func CloseDB() error {
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	return err
}
