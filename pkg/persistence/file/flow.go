package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/google/uuid"
)

const (
	flowsDir    = "flows"
	versionsDir = "versions"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	store *store
}

// List returns paginated and filtered flows, newest first.
func (fr *FlowRepository) List(_ context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	fr.store.mu.RLock()
	defer fr.store.mu.RUnlock()

	all, err := readAll[models.Flow](fr.store, flowsDir)
	if err != nil {
		return nil, persistence.NewFlowError("List", "", err)
	}

	filtered := make([]*models.Flow, 0, len(all))

	for _, flow := range all {
		if opts.ProjectID != "" && flow.ProjectID != opts.ProjectID {
			continue
		}

		if opts.Status != nil && flow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, flow)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	flows, hasNext := page(filtered, opts.Limit, opts.Offset)

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  int64(len(filtered)),
		HasNextPage: hasNext,
	}, nil
}

func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	fr.store.mu.RLock()
	defer fr.store.mu.RUnlock()

	return fr.get(id)
}

func (fr *FlowRepository) get(id string) (*models.Flow, error) {
	var flow models.Flow

	found, err := fr.store.read(flowsDir, id, &flow)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return &flow, nil
}

// Save creates or replaces a flow, assigning an id and timestamps when missing.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	fr.store.mu.Lock()
	defer fr.store.mu.Unlock()

	now := time.Now().UTC()

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	if flow.Status == "" {
		flow.Status = models.FlowStatusDraft
	}

	flow.UpdatedAt = now

	err := fr.store.write(flowsDir, flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Delete removes a flow together with its versions.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	fr.store.mu.Lock()
	defer fr.store.mu.Unlock()

	if _, err := fr.get(id); err != nil {
		return err
	}

	versions, err := readAll[models.Version](fr.store, versionsDir)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	for _, v := range versions {
		if v.FlowID != id {
			continue
		}

		err := fr.store.remove(versionsDir, v.ID)
		if err != nil {
			return persistence.NewFlowError("Delete", id, err)
		}
	}

	err = fr.store.remove(flowsDir, id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	return nil
}

// VersionRepository handles version-related file operations.
type VersionRepository struct {
	store *store
}

// Publish stores the version as the single active one of its flow.
func (vr *VersionRepository) Publish(_ context.Context, version *models.Version) error {
	vr.store.mu.Lock()
	defer vr.store.mu.Unlock()

	all, err := readAll[models.Version](vr.store, versionsDir)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, err)
	}

	number := 0

	for _, v := range all {
		if v.FlowID != version.FlowID {
			continue
		}

		if v.Number > number {
			number = v.Number
		}

		if v.IsActive {
			v.IsActive = false

			err := vr.store.write(versionsDir, v.ID, v)
			if err != nil {
				return persistence.NewVersionError("Publish", v.ID, err)
			}
		}
	}

	if version.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate version ID: %w", err)
		}

		version.ID = id.String()
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	version.Number = number + 1
	version.IsActive = true

	err = vr.store.write(versionsDir, version.ID, version)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, err)
	}

	return nil
}

func (vr *VersionRepository) GetByID(_ context.Context, id string) (*models.Version, error) {
	vr.store.mu.RLock()
	defer vr.store.mu.RUnlock()

	var version models.Version

	found, err := vr.store.read(versionsDir, id, &version)
	if err != nil {
		return nil, persistence.NewVersionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewVersionError("GetByID", id, persistence.ErrVersionNotFound)
	}

	return &version, nil
}

// ListByFlow returns the versions of a flow, latest number first.
func (vr *VersionRepository) ListByFlow(_ context.Context, flowID string) ([]*models.Version, error) {
	vr.store.mu.RLock()
	defer vr.store.mu.RUnlock()

	all, err := readAll[models.Version](vr.store, versionsDir)
	if err != nil {
		return nil, persistence.NewVersionError("ListByFlow", "", err)
	}

	versions := make([]*models.Version, 0)

	for _, v := range all {
		if v.FlowID == flowID {
			versions = append(versions, v)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Number > versions[j].Number
	})

	return versions, nil
}

func (vr *VersionRepository) Active(ctx context.Context, flowID string) (*models.Version, error) {
	versions, err := vr.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	for _, v := range versions {
		if v.IsActive {
			return v, nil
		}
	}

	return nil, persistence.NewVersionError("Active", "", persistence.ErrVersionNotFound)
}

func (vr *VersionRepository) ActiveByProject(_ context.Context, projectID string) ([]*models.Version, error) {
	vr.store.mu.RLock()
	defer vr.store.mu.RUnlock()

	all, err := readAll[models.Version](vr.store, versionsDir)
	if err != nil {
		return nil, persistence.NewVersionError("ActiveByProject", "", err)
	}

	created := make(map[string]time.Time)
	active := make([]*models.Version, 0)

	for _, v := range all {
		if !v.IsActive || v.ProjectID != projectID {
			continue
		}

		var flow models.Flow

		found, err := vr.store.read(flowsDir, v.FlowID, &flow)
		if err != nil {
			return nil, persistence.NewVersionError("ActiveByProject", v.ID, err)
		}

		if found {
			created[v.FlowID] = flow.CreatedAt
		}

		active = append(active, v)
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := created[active[i].FlowID], created[active[j].FlowID]
		if a.Equal(b) {
			return active[i].FlowID < active[j].FlowID
		}

		return a.Before(b)
	})

	return active, nil
}
