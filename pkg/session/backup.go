package session

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Backup is the blob used by the direct session transfer path: a copy of
// the last activated token kept outside the cookie jar.
type Backup struct {
	SessionToken string    `json:"sessionToken"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type BackupStore struct {
	storage Storage
	logger  *zap.Logger
}

func NewBackupStore(storage Storage, logger *zap.Logger) *BackupStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupStore{storage: storage, logger: logger}
}

// Load returns the backup if one exists and decodes.
func (b *BackupStore) Load() (Backup, bool) {
	raw, ok, err := b.storage.Get(KeySessionBackup)
	if err != nil {
		b.logger.Warn("failed to read session backup", zap.Error(err))
		return Backup{}, false
	}
	if !ok {
		return Backup{}, false
	}
	var backup Backup
	if err := json.Unmarshal([]byte(raw), &backup); err != nil || backup.SessionToken == "" {
		return Backup{}, false
	}
	return backup, true
}

func (b *BackupStore) Save(backup Backup) {
	raw, err := json.Marshal(backup)
	if err != nil {
		b.logger.Error("failed to encode session backup", zap.Error(err))
		return
	}
	if err := b.storage.Set(KeySessionBackup, string(raw)); err != nil {
		b.logger.Error("failed to persist session backup", zap.Error(err))
	}
}

func (b *BackupStore) Clear() {
	if err := b.storage.Delete(KeySessionBackup); err != nil {
		b.logger.Warn("failed to clear session backup", zap.Error(err))
	}
}
