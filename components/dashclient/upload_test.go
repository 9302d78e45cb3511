package dashclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCSV = "Equipment Name,Type,Flowrate,Pressure,Temperature\n" +
	"P-701,Pump,3.2,5.0,80\n" +
	"V-701,Valve,1.1,2.0,40\n"

// stubUploadGateway wraps a stubGateway so one fake backend serves both
// the upload call and the post-success chain.
type stubUploadGateway struct {
	data *stubGateway

	mu       sync.Mutex
	result   UploadResult
	err      error
	started  chan struct{}
	release  chan struct{}
	received []string
}

func (s *stubUploadGateway) Upload(_ context.Context, filename string, content io.Reader) (UploadResult, error) {
	s.data.record("upload")
	s.mu.Lock()
	s.received = append(s.received, filename)
	started, release := s.started, s.release
	s.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if s.err != nil {
		return UploadResult{}, s.err
	}
	// The server now knows about the new upload.
	s.data.mu.Lock()
	s.data.history = append([]UploadSummary{{ID: s.result.ID, Filename: s.result.Filename, Records: s.result.Records}}, s.data.history...)
	s.data.mu.Unlock()
	return s.result, nil
}

func newUploadFixture(t *testing.T) (*stubUploadGateway, *ViewModel, *UploadController) {
	t.Helper()
	data := seedGateway()
	data.summaries[7] = StatsSummary{TotalCount: 2}
	data.records[7] = []EquipmentRecord{{ID: 71}, {ID: 72}}
	gw := &stubUploadGateway{
		data:   data,
		result: UploadResult{ID: 7, Filename: "uploads/new.csv", Records: 2},
	}
	vm := NewViewModel(ViewModelOptions{Gateway: data})
	require.NoError(t, vm.Mount(context.Background()))
	ctrl := NewUploadController(UploadControllerOptions{Gateway: gw, ViewModel: vm})
	return gw, vm, ctrl
}

func TestSubmitChainsRefreshThenSelect(t *testing.T) {
	gw, vm, ctrl := newUploadFixture(t)

	require.NoError(t, ctrl.Submit(context.Background(), "new.csv", strings.NewReader(validCSV)))

	state, lastErr := ctrl.State()
	assert.Equal(t, UploadSucceeded, state)
	assert.Empty(t, lastErr)

	vs := vm.State()
	require.NotNil(t, vs.Selected)
	assert.Equal(t, 7, vs.Selected.ID)
	assert.Equal(t, 7, vs.Stats.UploadID)

	found := false
	for _, item := range vs.History {
		if item.ID == 7 {
			found = true
		}
	}
	assert.True(t, found, "history must contain the new upload")

	// Refresh happens before the selection fetches.
	gw.data.mu.Lock()
	order := append([]string(nil), gw.data.order...)
	gw.data.mu.Unlock()
	historyAt, summaryAt := -1, -1
	for i, call := range order {
		switch call {
		case "history":
			if i > historyAt {
				historyAt = i
			}
		case "summary":
			summaryAt = i
		}
	}
	require.GreaterOrEqual(t, summaryAt, 0)
	assert.Less(t, historyAt, summaryAt, "history refresh must precede the selection fetch")
}

func TestSubmitRejectsConcurrentUploads(t *testing.T) {
	gw, _, ctrl := newUploadFixture(t)
	gw.started = make(chan struct{})
	gw.release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ctrl.Submit(context.Background(), "first.csv", strings.NewReader(validCSV))
	}()
	<-gw.started

	err := ctrl.Submit(context.Background(), "second.csv", strings.NewReader(validCSV))
	require.ErrorIs(t, err, ErrUploadInFlight)

	close(gw.release)
	wg.Wait()
	assert.Equal(t, 1, gw.data.callCount("upload"), "the rejected submit must not reach the network")
}

func TestSubmitRequiresFile(t *testing.T) {
	_, _, ctrl := newUploadFixture(t)
	require.ErrorIs(t, ctrl.Submit(context.Background(), "x.csv", nil), ErrMissingFile)
}

func TestSubmitPreflightRejectsMissingColumns(t *testing.T) {
	gw, _, ctrl := newUploadFixture(t)

	err := ctrl.Submit(context.Background(), "bad.csv", strings.NewReader("Equipment Name,Type\nP-1,Pump\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flowrate")
	assert.Zero(t, gw.data.callCount("upload"), "preflight failures never reach the network")

	state, lastErr := ctrl.State()
	assert.Equal(t, UploadFailed, state)
	assert.NotEmpty(t, lastErr)
}

func TestSubmitPreflightAcceptsNormalizedHeaders(t *testing.T) {
	gw, _, ctrl := newUploadFixture(t)
	csv := "equipment_name,type,flowrate,pressure,temperature\nP-1,Pump,1,2,3\n"
	require.NoError(t, ctrl.Submit(context.Background(), "snake.csv", strings.NewReader(csv)))
	assert.Equal(t, 1, gw.data.callCount("upload"))
}

func TestSubmitFailureLeavesViewStateAlone(t *testing.T) {
	gw, vm, ctrl := newUploadFixture(t)
	gw.err = errors.New("csv rejected")
	before := vm.State()

	err := ctrl.Submit(context.Background(), "new.csv", strings.NewReader(validCSV))
	require.Error(t, err)

	state, lastErr := ctrl.State()
	assert.Equal(t, UploadFailed, state)
	assert.Contains(t, lastErr, "csv rejected")
	assert.Equal(t, before, vm.State(), "a failed upload must not mutate history or selection")
}

func TestSubmitReportsChainFailureAfterAcceptedUpload(t *testing.T) {
	gw, vm, ctrl := newUploadFixture(t)
	gw.data.mu.Lock()
	gw.data.errs["summary"] = errors.New("summary down")
	gw.data.mu.Unlock()

	err := ctrl.Submit(context.Background(), "new.csv", strings.NewReader(validCSV))
	require.Error(t, err, "selection failure is an upload-flow failure")

	state, _ := ctrl.State()
	assert.Equal(t, UploadFailed, state)
	assert.Nil(t, vm.State().Selected)
}

func TestCheckCSVHeadersEmptyFile(t *testing.T) {
	err := checkCSVHeaders([]byte("  \n"))
	require.ErrorIs(t, err, ErrMissingFile)
}
