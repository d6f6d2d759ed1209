package localdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ichi0g0y/thermal-receipt/internal/device"
)

// SavedPrintersKey is the settings key holding the saved printer list.
const SavedPrintersKey = "SAVED_PRINTERS"

// SavedPrinters は接続したことのあるプリンターの一覧
// settings テーブルの 1 キーに JSON 配列として保存する。古いものが先頭
type SavedPrinters struct {
	db *sql.DB
}

func NewSavedPrinters(db *sql.DB) *SavedPrinters {
	return &SavedPrinters{db: db}
}

// Load returns the saved printers, oldest first. A missing entry is an empty list.
func (s *SavedPrinters) Load() ([]device.Identity, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", SavedPrintersKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return []device.Identity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saved printers: %w", err)
	}

	var list []device.Identity
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil, fmt.Errorf("failed to decode saved printers: %w", err)
	}
	if list == nil {
		list = []device.Identity{}
	}
	return list, nil
}

// Save replaces the stored list.
func (s *SavedPrinters) Save(list []device.Identity) error {
	if list == nil {
		list = []device.Identity{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode saved printers: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, 'printer', false, 'Previously connected printers')
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		SavedPrintersKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save printers: %w", err)
	}
	return nil
}

// Add stores dev as the most recent printer. An equal entry is replaced, so
// a printer is never listed twice.
func (s *SavedPrinters) Add(dev device.Identity) ([]device.Identity, error) {
	list, err := s.Load()
	if err != nil {
		return nil, err
	}
	list = append(without(list, dev), dev)
	if err := s.Save(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Remove deletes every entry equal to dev.
func (s *SavedPrinters) Remove(dev device.Identity) ([]device.Identity, error) {
	list, err := s.Load()
	if err != nil {
		return nil, err
	}
	list = without(list, dev)
	if err := s.Save(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Last returns the most recently added printer.
func (s *SavedPrinters) Last() (device.Identity, bool, error) {
	list, err := s.Load()
	if err != nil || len(list) == 0 {
		return device.Identity{}, false, err
	}
	return list[len(list)-1], true, nil
}

func without(list []device.Identity, dev device.Identity) []device.Identity {
	out := make([]device.Identity, 0, len(list))
	for _, d := range list {
		if !d.Equal(dev) {
			out = append(out, d)
		}
	}
	return out
}
