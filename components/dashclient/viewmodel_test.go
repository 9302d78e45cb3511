package dashclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway is a channel-gated DataGateway so tests can control the
// resolution order of concurrent fetches.
type stubGateway struct {
	mu        sync.Mutex
	history   []UploadSummary
	profile   UserProfile
	users     []UserProfile
	summaries map[int]StatsSummary
	records   map[int][]EquipmentRecord
	errs      map[string]error
	calls     map[string]int
	order     []string

	summaryStarted map[int]chan struct{}
	summaryRelease map[int]chan struct{}
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		summaries:      map[int]StatsSummary{},
		records:        map[int][]EquipmentRecord{},
		errs:           map[string]error{},
		calls:          map[string]int{},
		summaryStarted: map[int]chan struct{}{},
		summaryRelease: map[int]chan struct{}{},
	}
}

func (s *stubGateway) record(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.order = append(s.order, name)
	s.mu.Unlock()
}

func (s *stubGateway) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubGateway) Profile(context.Context) (UserProfile, error) {
	s.record("profile")
	return s.profile, s.errs["profile"]
}

func (s *stubGateway) History(context.Context) ([]UploadSummary, error) {
	s.record("history")
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadSummary(nil), s.history...), s.errs["history"]
}

func (s *stubGateway) Summary(_ context.Context, id int) (StatsSummary, error) {
	s.record("summary")
	s.mu.Lock()
	started := s.summaryStarted[id]
	release := s.summaryRelease[id]
	s.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["summary"]; err != nil {
		return StatsSummary{}, err
	}
	return s.summaries[id], nil
}

func (s *stubGateway) Data(_ context.Context, id int) ([]EquipmentRecord, error) {
	s.record("data")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["data"]; err != nil {
		return nil, err
	}
	return s.records[id], nil
}

func (s *stubGateway) Users(context.Context) ([]UserProfile, error) {
	s.record("users")
	return s.users, s.errs["users"]
}

func seedGateway() *stubGateway {
	gw := newStubGateway()
	gw.history = []UploadSummary{
		{ID: 1, Filename: "uploads/first.csv", Records: 3},
		{ID: 2, Filename: "uploads/second.csv", Records: 5},
	}
	gw.profile = UserProfile{ID: 9, Username: "ada", IsStaff: true}
	gw.summaries[1] = StatsSummary{TotalCount: 3}
	gw.summaries[2] = StatsSummary{
		TotalCount: 5,
		Averages:   Averages{Flowrate: 3.2, Pressure: 4.4, Temperature: 81},
		TypeDistribution: []TypeCount{
			{EquipmentType: "Pump", Count: 3},
			{EquipmentType: "Valve", Count: 2},
		},
	}
	gw.records[1] = []EquipmentRecord{{ID: 11, EquipmentName: "P-101"}}
	gw.records[2] = []EquipmentRecord{
		{ID: 21, EquipmentName: "P-201", EquipmentType: "Pump", Flowrate: 3.1},
		{ID: 22, EquipmentName: "P-202", EquipmentType: "Pump", Flowrate: 3.3},
		{ID: 23, EquipmentName: "P-203", EquipmentType: "Pump", Flowrate: 3.2},
		{ID: 24, EquipmentName: "V-101", EquipmentType: "Valve", Flowrate: 3.2},
		{ID: 25, EquipmentName: "V-102", EquipmentType: "Valve", Flowrate: 3.2},
	}
	return gw
}

func TestMountFetchesHistoryAndProfile(t *testing.T) {
	gw := seedGateway()
	vm := NewViewModel(ViewModelOptions{Gateway: gw})

	require.NoError(t, vm.Mount(context.Background()))

	state := vm.State()
	assert.Len(t, state.History, 2)
	require.NotNil(t, state.Profile)
	assert.Equal(t, "ada", state.Profile.Username)
	assert.Equal(t, TabDashboard, state.ActiveTab)
	assert.Nil(t, state.Selected)
	assert.Nil(t, state.Stats)
}

func TestMountKeepsIndependentResults(t *testing.T) {
	gw := seedGateway()
	gw.errs["profile"] = errors.New("boom")
	vm := NewViewModel(ViewModelOptions{Gateway: gw})

	err := vm.Mount(context.Background())
	require.Error(t, err)

	state := vm.State()
	assert.Len(t, state.History, 2, "history result must survive a profile failure")
	assert.Nil(t, state.Profile)
}

func TestSelectUploadCommitsStatsAndRowsTogether(t *testing.T) {
	gw := seedGateway()
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	require.NoError(t, vm.Mount(context.Background()))
	require.NoError(t, vm.SetTab(context.Background(), TabHistory))

	require.NoError(t, vm.SelectUpload(context.Background(), 2))

	state := vm.State()
	require.NotNil(t, state.Selected)
	require.NotNil(t, state.Stats)
	assert.Equal(t, 2, state.Selected.ID)
	assert.Equal(t, 2, state.Stats.UploadID)
	assert.Len(t, state.Selected.Records, 5)
	assert.Equal(t, TabDashboard, state.ActiveTab, "successful selection activates the dashboard tab")
	assert.False(t, state.Loading)
}

func TestSelectUploadUnknownIDIsLocalError(t *testing.T) {
	gw := seedGateway()
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	require.NoError(t, vm.Mount(context.Background()))

	err := vm.SelectUpload(context.Background(), 99)
	require.ErrorIs(t, err, ErrUnknownUpload)
	assert.Zero(t, gw.callCount("summary"), "unknown id must not reach the network")
	assert.Zero(t, gw.callCount("data"))
	assert.Nil(t, vm.State().Selected)
}

func TestSelectUploadPartialFailureCommitsNothing(t *testing.T) {
	gw := seedGateway()
	gw.errs["summary"] = errors.New("summary down")
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	require.NoError(t, vm.Mount(context.Background()))

	err := vm.SelectUpload(context.Background(), 2)
	require.Error(t, err)

	state := vm.State()
	assert.Nil(t, state.Selected, "rows alone must never be shown")
	assert.Nil(t, state.Stats)
	assert.False(t, state.Loading, "a failed flow must not stay loading")
}

func TestSelectUploadLastRequestWins(t *testing.T) {
	gw := seedGateway()
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	require.NoError(t, vm.Mount(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	gw.mu.Lock()
	gw.summaryStarted[1] = started
	gw.summaryRelease[1] = release
	gw.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = vm.SelectUpload(context.Background(), 1)
	}()
	<-started

	require.NoError(t, vm.SelectUpload(context.Background(), 2))
	close(release)
	wg.Wait()

	state := vm.State()
	require.NotNil(t, state.Selected)
	assert.Equal(t, 2, state.Selected.ID, "a superseded response must not overwrite the newer selection")
	assert.Equal(t, 2, state.Stats.UploadID)
}

func TestSelectUploadStaleErrorDoesNotClearNewerCommit(t *testing.T) {
	gw := seedGateway()
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	require.NoError(t, vm.Mount(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	gw.mu.Lock()
	gw.summaryStarted[1] = started
	gw.summaryRelease[1] = release
	gw.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = vm.SelectUpload(context.Background(), 1)
	}()
	<-started

	require.NoError(t, vm.SelectUpload(context.Background(), 2))

	// The stale request now fails; the committed selection must survive.
	gw.mu.Lock()
	gw.errs["summary"] = errors.New("late failure")
	gw.mu.Unlock()
	close(release)
	wg.Wait()

	state := vm.State()
	require.NotNil(t, state.Selected)
	assert.Equal(t, 2, state.Selected.ID)
	assert.False(t, state.Loading)
}

func TestSetTabUsersRefetchesEachActivation(t *testing.T) {
	gw := seedGateway()
	gw.users = []UserProfile{{ID: 1, Username: "ada", IsStaff: true}}
	vm := NewViewModel(ViewModelOptions{Gateway: gw})

	require.NoError(t, vm.SetTab(context.Background(), TabUsers))
	require.NoError(t, vm.SetTab(context.Background(), TabHistory))
	require.NoError(t, vm.SetTab(context.Background(), TabUsers))

	assert.Equal(t, 2, gw.callCount("users"))
	assert.Len(t, vm.State().Users, 1)
}

func TestSetTabRejectsUnknownTab(t *testing.T) {
	vm := NewViewModel(ViewModelOptions{Gateway: seedGateway()})
	err := vm.SetTab(context.Background(), Tab("settings"))
	require.Error(t, err)
	assert.Equal(t, TabDashboard, vm.State().ActiveTab)
}

func TestResetRestoresFreshMountState(t *testing.T) {
	gw := seedGateway()
	gw.users = []UserProfile{{ID: 1, Username: "ada"}}
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	ctx := context.Background()
	require.NoError(t, vm.Mount(ctx))
	require.NoError(t, vm.SelectUpload(ctx, 2))
	require.NoError(t, vm.SetTab(ctx, TabUsers))

	vm.Reset()

	fresh := NewViewModel(ViewModelOptions{Gateway: gw}).State()
	assert.Equal(t, fresh, vm.State())
}

func TestLogoutHookResetsViewModel(t *testing.T) {
	gw := seedGateway()
	session := NewSession(nil)
	require.NoError(t, session.Login("tok-123"))
	vm := NewViewModel(ViewModelOptions{Gateway: gw})
	session.OnLogout(vm.Reset)

	ctx := context.Background()
	require.NoError(t, vm.Mount(ctx))
	require.NoError(t, vm.SelectUpload(ctx, 2))

	require.NoError(t, session.Logout())

	assert.False(t, session.Authenticated())
	state := vm.State()
	assert.Empty(t, state.History)
	assert.Nil(t, state.Selected)
	assert.Nil(t, state.Stats)
	assert.Empty(t, state.Users)
}

func TestSelectionCommitPublishesEvent(t *testing.T) {
	gw := seedGateway()
	events := NewBroadcast()
	vm := NewViewModel(ViewModelOptions{Gateway: gw, Events: events})
	sub, cancel := events.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.NoError(t, vm.Mount(ctx))
	require.NoError(t, vm.SelectUpload(ctx, 2))

	commits := 0
	timeout := time.After(time.Second)
	for commits == 0 {
		select {
		case event := <-sub:
			if event.Kind == EventSelectionCommitted {
				assert.Equal(t, 2, event.UploadID)
				commits++
			}
		case <-timeout:
			t.Fatal("no selection event observed")
		}
	}
	assert.Equal(t, 1, commits)
}

func TestRememberSelectionUpdatesPreferences(t *testing.T) {
	gw := seedGateway()
	prefs := NewInMemoryPreferenceStore()
	vm := NewViewModel(ViewModelOptions{Gateway: gw, Preferences: prefs})
	ctx := context.Background()
	require.NoError(t, vm.Mount(ctx))
	require.NoError(t, vm.SelectUpload(ctx, 2))

	saved, err := prefs.Preferences(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.LastUploadID)
	assert.Equal(t, ThemeDark, saved.Theme)
}
