package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/campus-server/internal/store"
)

// ReadOnlySlug is the one channel that only accepts server-side posts.
const ReadOnlySlug = "announcements"

var slugPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidSlug reports whether slug may name a channel.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// IsReadOnlySlug reports whether a channel created with slug is read-only.
// The flag is fixed at creation time.
func IsReadOnlySlug(slug string) bool {
	return slug == ReadOnlySlug
}

// Directory maps channel slugs to persisted channels, creating them lazily.
type Directory struct {
	channels store.ChannelStore
	log      *zerolog.Logger
}

// NewDirectory builds a directory over the given channel store.
func NewDirectory(channels store.ChannelStore, logger *zerolog.Logger) *Directory {
	return &Directory{channels: channels, log: logger}
}

// ResolveOrCreate returns the channel for slug, creating it on first use.
// Concurrent first connections race on the unique slug; the loser re-reads
// the winner's row instead of failing.
func (d *Directory) ResolveOrCreate(ctx context.Context, slug string) (*store.Channel, error) {
	if !ValidSlug(slug) {
		return nil, badRequest(fmt.Sprintf("invalid channel slug %q", slug))
	}

	ch, err := d.channels.GetChannelBySlug(ctx, slug)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup channel: %w", err)
	}

	ch, err = d.channels.CreateChannel(ctx, slug, IsReadOnlySlug(slug))
	if err == nil {
		d.log.Info().Str("channel", slug).Bool("read_only", ch.ReadOnly).Msg("channel created")
		return ch, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	ch, err = d.channels.GetChannelBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("lookup channel after conflict: %w", err)
	}
	return ch, nil
}
