package catalog

import (
	"context"
	"log/slog"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Resolver maps a raw channel reference to a stable channel id.
// Results are not cached here; callers cache the composite response.
type Resolver struct {
	up      Upstream
	handles HandleResolver // optional, used only when lookups hit the quota
}

// NewResolver returns a Resolver. handles may be nil.
func NewResolver(up Upstream, handles HandleResolver) *Resolver {
	return &Resolver{up: up, handles: handles}
}

// Resolve returns ref unchanged when it already is a channel id. Otherwise it
// tries name search, then legacy username, and fails with channel_not_found.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if engine.IsChannelID(ref) {
		return ref, nil
	}
	name := engine.HandleName(ref)
	if name == "" {
		return "", engine.ErrInvalidRequest("channelId is empty")
	}
	engine.IncrChannelResolutions()

	id, err := r.up.FindChannelByName(ctx, name)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !engine.IsKind(err, engine.KindQuotaExceeded) {
		return "", err
	}
	searchErr := err

	id, err = r.up.ChannelByUsername(ctx, name)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !engine.IsKind(err, engine.KindQuotaExceeded) {
		return "", err
	}
	if err == nil {
		err = searchErr
	}
	if err == nil {
		return "", engine.ErrChannelNotFound(ref)
	}

	// Quota exhausted: the public handle page still answers.
	if r.handles == nil {
		return "", err
	}
	id, scrapeErr := r.handles.ResolveHandle(ctx, ref)
	if scrapeErr != nil {
		slog.Debug("handle page resolution failed", slog.String("channel", ref), slog.Any("error", scrapeErr))
		return "", err
	}
	slog.Debug("channel resolved from handle page", slog.String("channel", ref), slog.String("id", id))
	return id, nil
}
