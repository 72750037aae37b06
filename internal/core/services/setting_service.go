package services

import (
	"context"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"github.com/lookout/backend/pkg/utils/crypto"
)

// SystemSettingService stores runtime-editable settings. Values flagged
// secret (executor API keys, webhook tokens) are encrypted at rest with
// the configured encryption key.
type SystemSettingService struct {
	repo          ports.SystemSettingRepository
	logger        *logger.Logger
	encryptionKey string
}

func NewSystemSettingService(repo ports.SystemSettingRepository, log *logger.Logger, encryptionKey string) *SystemSettingService {
	return &SystemSettingService{
		repo:          repo,
		logger:        log,
		encryptionKey: encryptionKey,
	}
}

func (s *SystemSettingService) Get(ctx context.Context, key string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", ErrSettingNotFound
	}
	if !setting.Encrypted {
		return setting.Value, nil
	}

	plain, err := crypto.Decrypt(setting.Value, s.encryptionKey)
	if err != nil {
		s.logger.Errorw("setting_decrypt_failed", "key", key, "error", err)
		return "", err
	}
	return plain, nil
}

func (s *SystemSettingService) Set(ctx context.Context, key, value, category string, secret bool) error {
	stored := value
	if secret {
		encrypted, err := crypto.Encrypt(value, s.encryptionKey)
		if err != nil {
			s.logger.Errorw("setting_encrypt_failed", "key", key, "error", err)
			return err
		}
		stored = encrypted
	}

	setting := &domain.SystemSetting{
		Key:       key,
		Value:     stored,
		Encrypted: secret,
		Category:  category,
	}
	if err := s.repo.Set(ctx, setting); err != nil {
		return err
	}

	s.logger.Infow("setting_saved", "key", key, "category", category, "encrypted", secret)
	return nil
}

// GetByCategory returns decrypted values for one category. A value that
// fails to decrypt is omitted rather than failing the whole read.
func (s *SystemSettingService) GetByCategory(ctx context.Context, category string) (map[string]string, error) {
	settings, err := s.repo.GetByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		if !setting.Encrypted {
			result[setting.Key] = setting.Value
			continue
		}
		plain, err := crypto.Decrypt(setting.Value, s.encryptionKey)
		if err != nil {
			s.logger.Errorw("setting_decrypt_failed", "key", setting.Key, "error", err)
			continue
		}
		result[setting.Key] = plain
	}
	return result, nil
}
