package api

import (
	"context"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/engine"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

// Catalog exposes the template library to handlers.
type Catalog interface {
	Discover(category string) ([]templates.Summary, []templates.Warning)
	Load(id string) (*domain.Template, error)
}

// Instantiator creates boards from templates.
type Instantiator interface {
	Instantiate(ctx context.Context, templateID, projectName, teamID string, vars map[string]string) (engine.InstantiateResult, error)
}

// Syncer reconciles boards against their templates.
type Syncer interface {
	Reconcile(ctx context.Context, boardID, templateID string, direction domain.SyncDirection, dryRun bool) (domain.SyncReport, error)
}

// Tracker reads and writes board-to-template lineage.
type Tracker interface {
	Get(ctx context.Context, boardID string) (domain.Tracking, error)
	Set(ctx context.Context, boardID, templateID, version string, status domain.UpgradeStatus) error
}

// Exporter captures boards back into templates.
type Exporter interface {
	Export(ctx context.Context, boardID string, opts engine.ExportOptions) (engine.ExportResult, error)
}

// Pinger reports whether the board backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate instantiate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
