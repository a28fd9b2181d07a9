package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
)

// Board property keys linking a board back to the template it came from.
const (
	propTemplateID      = "bacon-template-id"
	propTemplateVersion = "bacon-template-version"
	propUpgradeStatus   = "bacon-upgrade-status"
)

// TrackingStore reads and writes template lineage off board properties.
// The board itself is the system of record; nothing is cached here.
type TrackingStore struct {
	store  TemplateStore
	client BoardClient
	logger *log.Logger
}

func NewTrackingStore(store TemplateStore, client BoardClient, logger *log.Logger) *TrackingStore {
	return &TrackingStore{store: store, client: client, logger: logger}
}

// Get reads the lineage properties off the board. Boards with no template
// id come back untracked. When the source template is still loadable its
// current version is compared against the recorded one to flag pending
// upgrades; a template that fails to load leaves those fields empty rather
// than failing the read.
func (t *TrackingStore) Get(ctx context.Context, boardID string) (domain.Tracking, error) {
	board, err := t.client.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Tracking{}, fmt.Errorf("get board: %w", err)
	}

	templateID := board.Property(propTemplateID)
	if templateID == "" {
		return domain.Tracking{Tracked: false}, nil
	}

	tracking := domain.Tracking{
		Tracked:         true,
		TemplateID:      templateID,
		TemplateVersion: board.Property(propTemplateVersion),
		UpgradeStatus:   domain.UpgradeStatus(board.Property(propUpgradeStatus)),
	}

	tmpl, err := t.store.Load(templateID)
	if err != nil {
		if t.logger != nil {
			t.logger.WithFields(log.Fields{
				"board_id":    boardID,
				"template_id": templateID,
			}).WithError(err).Warn("tracked template not loadable")
		}
		return tracking, nil
	}
	tracking.CurrentVersion = tmpl.Meta.Version
	tracking.UpgradeAvailable = tmpl.Meta.Version != "" && tmpl.Meta.Version != tracking.TemplateVersion
	return tracking, nil
}

// Set writes all three lineage properties in one board patch.
func (t *TrackingStore) Set(ctx context.Context, boardID, templateID, version string, status domain.UpgradeStatus) error {
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown upgrade status %q", status)
	}
	if status == "" {
		status = domain.UpgradeCurrent
	}
	err := t.client.PatchBoard(ctx, boardID, focalboard.BoardPatch{
		UpdatedProperties: map[string]any{
			propTemplateID:      templateID,
			propTemplateVersion: version,
			propUpgradeStatus:   string(status),
		},
	})
	if err != nil {
		return fmt.Errorf("patch board: %w", err)
	}
	if t.logger != nil {
		t.logger.WithFields(log.Fields{
			"board_id":    boardID,
			"template_id": templateID,
			"version":     version,
			"status":      status,
		}).Info("board tracking updated")
	}
	return nil
}
