package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// ChannelYAML is one catalog entry in a channels file.
type ChannelYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// CatalogYAML is the top-level layout of a channels file.
type CatalogYAML struct {
	TextChannels []ChannelYAML `yaml:"text_channels"`
	VoiceRooms   []ChannelYAML `yaml:"voice_rooms"`
}

// LoadChannelsFile seeds the catalog from a YAML file.
func LoadChannelsFile(ctx context.Context, path string, st core.ChannelStore) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("read channels file: %w", err)
	}
	return ImportChannelsYAML(ctx, data, st)
}

// ImportChannelsYAML creates every listed channel that does not exist yet and
// returns how many were created. Existing entries are left untouched.
func ImportChannelsYAML(ctx context.Context, data []byte, st core.ChannelStore) (int, error) {
	var cat CatalogYAML
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return 0, fmt.Errorf("parse channels file: %w", err)
	}

	created := 0
	seed := func(entries []ChannelYAML, t domain.ChannelType) error {
		for _, e := range entries {
			ch := &domain.Channel{Name: e.Name, Description: e.Description, Type: t}
			err := st.CreateChannel(ctx, ch)
			switch {
			case err == nil:
				created++
				log.Debug().Str("module", "store").Str("name", e.Name).Str("type", string(t)).Msg("seeded channel")
			case errors.Is(err, ErrChannelExists):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				log.Error().Err(err).Str("module", "store").Str("name", e.Name).Msg("skipping channel from file")
			}
		}
		return nil
	}
	if err := seed(cat.TextChannels, domain.ChannelText); err != nil {
		return created, err
	}
	if err := seed(cat.VoiceRooms, domain.ChannelVoice); err != nil {
		return created, err
	}

	log.Info().Str("module", "store").Int("created", created).
		Int("listed", len(cat.TextChannels)+len(cat.VoiceRooms)).Msg("imported channel catalog")
	return created, nil
}

// ExportChannelsYAML renders the catalog in the layout ImportChannelsYAML reads.
func ExportChannelsYAML(ctx context.Context, st core.ChannelStore) ([]byte, error) {
	channels, err := st.ListChannels(ctx, "")
	if err != nil {
		return nil, err
	}
	cat := CatalogYAML{TextChannels: []ChannelYAML{}, VoiceRooms: []ChannelYAML{}}
	for _, ch := range channels {
		entry := ChannelYAML{Name: ch.Name, Description: ch.Description}
		if ch.Type == domain.ChannelVoice {
			cat.VoiceRooms = append(cat.VoiceRooms, entry)
		} else {
			cat.TextChannels = append(cat.TextChannels, entry)
		}
	}
	return yaml.Marshal(&cat)
}
