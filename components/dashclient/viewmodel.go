package dashclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var errMissingGateway = errors.New("dashclient: data gateway not configured")

// ViewModelOptions configures the dashboard view-model. Every collaborator
// is provided via interface so embedders can swap implementations.
type ViewModelOptions struct {
	Gateway     DataGateway
	Telemetry   Telemetry
	Events      *Broadcast
	Preferences PreferenceStore
	Logger      *zap.Logger
}

// ViewModel owns the dashboard view state: active tab, upload history, the
// selected upload with its statistics, the admin user list, and the
// profile of the logged-in user. All mutation goes through its methods;
// commits happen under one lock so readers never observe a selection whose
// statistics belong to a different upload.
type ViewModel struct {
	opts ViewModelOptions

	mu        sync.RWMutex
	activeTab Tab
	history   []UploadSummary
	selected  *SelectedUpload
	stats     *StatsSummary
	users     []UserProfile
	profile   *UserProfile
	loading   bool

	// selectGen identifies the most recently requested selection. A fetch
	// that finishes after a newer request has been issued is discarded:
	// last request wins, not last response.
	selectGen uint64
}

// ViewState is an immutable snapshot of the view-model handed to renderers
// and tests.
type ViewState struct {
	ActiveTab Tab
	History   []UploadSummary
	Selected  *SelectedUpload
	Stats     *StatsSummary
	Users     []UserProfile
	Profile   *UserProfile
	Loading   bool
}

// NewViewModel builds a view-model with safe defaults.
func NewViewModel(opts ViewModelOptions) *ViewModel {
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ViewModel{
		opts:      opts,
		activeTab: TabDashboard,
	}
}

// Mount loads the initial dashboard data: history and profile, fetched
// concurrently. The two results are independent; one failing does not
// discard the other.
func (vm *ViewModel) Mount(ctx context.Context) error {
	if vm.opts.Gateway == nil {
		return errMissingGateway
	}
	var wg sync.WaitGroup
	var historyErr, profileErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		historyErr = vm.RefreshHistory(ctx)
	}()
	go func() {
		defer wg.Done()
		profileErr = vm.fetchProfile(ctx)
	}()
	wg.Wait()
	return errors.Join(historyErr, profileErr)
}

// RefreshHistory reloads the upload history list as returned by the
// server, without touching the current selection.
func (vm *ViewModel) RefreshHistory(ctx context.Context) error {
	if vm.opts.Gateway == nil {
		return errMissingGateway
	}
	history, err := vm.opts.Gateway.History(ctx)
	if err != nil {
		vm.opts.Logger.Warn("history refresh failed", zap.Error(err))
		return fmt.Errorf("dashclient: refresh history: %w", err)
	}
	vm.mu.Lock()
	vm.history = history
	vm.mu.Unlock()
	vm.opts.Events.Publish(StateEvent{Kind: EventHistoryRefreshed})
	return nil
}

func (vm *ViewModel) fetchProfile(ctx context.Context) error {
	profile, err := vm.opts.Gateway.Profile(ctx)
	if err != nil {
		vm.opts.Logger.Warn("profile fetch failed", zap.Error(err))
		return fmt.Errorf("dashclient: fetch profile: %w", err)
	}
	vm.mu.Lock()
	vm.profile = &profile
	vm.mu.Unlock()
	return nil
}

// SelectUpload loads the summary and row data for id and commits both as
// one visible change. The two fetches run concurrently; neither result is
// shown unless both succeed. If a newer SelectUpload is issued while this
// one is in flight, this one's result is discarded on arrival.
func (vm *ViewModel) SelectUpload(ctx context.Context, id int) error {
	if vm.opts.Gateway == nil {
		return errMissingGateway
	}

	vm.mu.Lock()
	if !vm.historyContainsLocked(id) {
		vm.mu.Unlock()
		return ErrUnknownUpload
	}
	vm.selectGen++
	gen := vm.selectGen
	vm.loading = true
	vm.mu.Unlock()

	var (
		wg      sync.WaitGroup
		stats   StatsSummary
		records []EquipmentRecord
		sumErr  error
		dataErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, sumErr = vm.opts.Gateway.Summary(ctx, id)
	}()
	go func() {
		defer wg.Done()
		records, dataErr = vm.opts.Gateway.Data(ctx, id)
	}()
	wg.Wait()

	vm.mu.Lock()
	if gen != vm.selectGen {
		// Superseded by a newer selection; nothing here is visible.
		vm.mu.Unlock()
		vm.opts.Telemetry.Record(ctx, "dashboard.select.stale", map[string]any{"upload_id": id})
		return nil
	}
	vm.loading = false
	if err := errors.Join(sumErr, dataErr); err != nil {
		vm.mu.Unlock()
		vm.opts.Logger.Warn("selection load failed", zap.Int("upload_id", id), zap.Error(err))
		return fmt.Errorf("dashclient: load upload %d: %w", id, err)
	}
	stats.UploadID = id
	vm.selected = &SelectedUpload{ID: id, Records: records}
	vm.stats = &stats
	vm.activeTab = TabDashboard
	username := ""
	if vm.profile != nil {
		username = vm.profile.Username
	}
	vm.mu.Unlock()

	vm.rememberSelection(ctx, username, id)
	vm.opts.Events.Publish(StateEvent{Kind: EventSelectionCommitted, UploadID: id})
	vm.opts.Telemetry.Record(ctx, "dashboard.select.commit", map[string]any{
		"upload_id": id,
		"records":   len(records),
	})
	return nil
}

// SetTab switches the active tab. Switching to the users tab refreshes the
// user list on every activation, matching the observed web behavior; the
// list is not cached across activations.
func (vm *ViewModel) SetTab(ctx context.Context, tab Tab) error {
	switch tab {
	case TabDashboard, TabHistory, TabUpload, TabUsers:
	default:
		return fmt.Errorf("dashclient: unknown tab %q", tab)
	}

	vm.mu.Lock()
	vm.activeTab = tab
	vm.mu.Unlock()
	vm.opts.Events.Publish(StateEvent{Kind: EventTabChanged, Tab: tab})

	if tab == TabUsers {
		return vm.fetchUsers(ctx)
	}
	return nil
}

func (vm *ViewModel) fetchUsers(ctx context.Context) error {
	if vm.opts.Gateway == nil {
		return errMissingGateway
	}
	users, err := vm.opts.Gateway.Users(ctx)
	if err != nil {
		vm.opts.Logger.Warn("users fetch failed", zap.Error(err))
		return fmt.Errorf("dashclient: fetch users: %w", err)
	}
	vm.mu.Lock()
	vm.users = users
	vm.mu.Unlock()
	return nil
}

// Reset discards all view state, returning the view-model to its
// fresh-mount shape. Wired to Session.OnLogout so logout is a hard reset.
func (vm *ViewModel) Reset() {
	vm.mu.Lock()
	vm.activeTab = TabDashboard
	vm.history = nil
	vm.selected = nil
	vm.stats = nil
	vm.users = nil
	vm.profile = nil
	vm.loading = false
	vm.selectGen++
	vm.mu.Unlock()
	vm.opts.Events.Publish(StateEvent{Kind: EventLoggedOut})
}

// State returns a snapshot of the current view state. Slices are shared
// with the view-model and must be treated as read-only.
func (vm *ViewModel) State() ViewState {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	state := ViewState{
		ActiveTab: vm.activeTab,
		History:   vm.history,
		Users:     vm.users,
		Loading:   vm.loading,
	}
	if vm.selected != nil {
		sel := *vm.selected
		state.Selected = &sel
	}
	if vm.stats != nil {
		stats := *vm.stats
		state.Stats = &stats
	}
	if vm.profile != nil {
		profile := *vm.profile
		state.Profile = &profile
	}
	return state
}

// DeriveCharts projects the current selection into chart datasets. Pure
// with respect to view state: nil whenever selection or stats are absent.
func (vm *ViewModel) DeriveCharts() *ChartBundle {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return DeriveCharts(vm.selected, vm.stats)
}

func (vm *ViewModel) historyContainsLocked(id int) bool {
	for _, item := range vm.history {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (vm *ViewModel) rememberSelection(ctx context.Context, username string, id int) {
	if vm.opts.Preferences == nil || username == "" {
		return
	}
	prefs, err := vm.opts.Preferences.Preferences(ctx, username)
	if err != nil {
		return
	}
	prefs.LastUploadID = id
	if err := vm.opts.Preferences.SavePreferences(ctx, username, prefs); err != nil {
		vm.opts.Logger.Debug("preference save failed", zap.Error(err))
	}
}
