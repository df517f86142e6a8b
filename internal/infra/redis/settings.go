package redis

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	redislib "github.com/redis/go-redis/v9"
)

const settingsKeyPrefix = "lanplay:player:"

// Settings are the transport modes restored when a player starts.
type Settings struct {
	RepeatMode string // none, all or one
	Shuffle    bool
}

// DefaultSettings returns the settings of a fresh player.
func DefaultSettings() Settings {
	return Settings{RepeatMode: "none"}
}

// SettingsStore keeps one settings hash per player name.
type SettingsStore struct {
	client *redislib.Client
}

// NewSettingsStore creates a store on client.
func NewSettingsStore(client *redislib.Client) *SettingsStore {
	return &SettingsStore{client: client}
}

func (s *SettingsStore) ensureClient() error {
	if s == nil || s.client == nil {
		return errors.New("redis client not initialized")
	}
	return nil
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *SettingsStore) Get(ctx context.Context, player string) (Settings, error) {
	if err := s.ensureClient(); err != nil {
		return Settings{}, err
	}
	if player == "" {
		return Settings{}, errors.New("player name is required")
	}

	data, err := s.client.HGetAll(ctx, settingsKey(player)).Result()
	if err != nil {
		return Settings{}, errors.Wrap(err, "failed to read player settings")
	}
	return decodeSettings(data), nil
}

// Set stores the settings.
func (s *SettingsStore) Set(ctx context.Context, player string, settings Settings) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	if player == "" {
		return errors.New("player name is required")
	}

	if err := s.client.HSet(ctx, settingsKey(player), encodeSettings(settings)).Err(); err != nil {
		return errors.Wrap(err, "failed to write player settings")
	}
	return nil
}

func settingsKey(player string) string {
	return settingsKeyPrefix + player
}

func encodeSettings(settings Settings) map[string]any {
	return map[string]any{
		"repeat_mode": settings.RepeatMode,
		"shuffle":     strconv.FormatBool(settings.Shuffle),
	}
}

func decodeSettings(data map[string]string) Settings {
	settings := DefaultSettings()
	if v, ok := data["repeat_mode"]; ok && v != "" {
		settings.RepeatMode = v
	}
	if v, ok := data["shuffle"]; ok && v != "" {
		settings.Shuffle, _ = strconv.ParseBool(v)
	}
	return settings
}
