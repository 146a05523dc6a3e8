package portal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certportal/internal/models"
)

// MockClient is a mock implementation of chain.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) VerifyCertificate(ctx context.Context, certID string) (models.VerificationResult, error) {
	args := m.Called(ctx, certID)
	return args.Get(0).(models.VerificationResult), args.Error(1)
}

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, a *models.VerificationAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

// blockingClient holds every call until release is closed.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
	result  models.VerificationResult
	err     error
}

func newBlockingClient(res models.VerificationResult, err error) *blockingClient {
	return &blockingClient{started: make(chan struct{}, 1), release: make(chan struct{}), result: res, err: err}
}

func (b *blockingClient) VerifyCertificate(ctx context.Context, _ string) (models.VerificationResult, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return b.result, b.err
	case <-ctx.Done():
		return models.VerificationResult{}, ctx.Err()
	}
}

type panicClient struct{}

func (panicClient) VerifyCertificate(context.Context, string) (models.VerificationResult, error) {
	panic("rpc exploded")
}

func TestVerifyValidCertificate(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil)

	c := NewController(client)
	st, err := c.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	assert.Equal(t, "ABC123", st.CertID)
	assert.True(t, st.IsValid)
	assert.False(t, st.Loading)
	assert.Equal(t, "Jane Doe", st.StudentName)
	assert.Equal(t, "bafy123", st.BlobID)
	assert.Empty(t, st.Message)
	assert.Equal(t, PhaseResolvedValid, st.Phase)
	assert.True(t, st.ShowStudent())
	assert.True(t, st.ShowImage())
	assert.False(t, st.ShowMessage())
	assert.Equal(t, "Valid", st.StatusLabel())
	client.AssertExpectations(t)
}

func TestVerifyInvalidCertificate(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "XYZ000").
		Return(models.VerificationResult{}, nil)

	st, err := NewController(client).Verify(context.Background(), "XYZ000")
	require.NoError(t, err)

	assert.False(t, st.IsValid)
	assert.False(t, st.Loading)
	assert.Equal(t, MsgInvalid, st.Message)
	assert.Equal(t, PhaseResolvedInvalid, st.Phase)
	assert.False(t, st.ShowStudent())
	assert.False(t, st.ShowImage())
	assert.Equal(t, "error", st.MessageTone())
}

func TestInvalidResultHidesMetadataRegardlessOfContent(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "LEAKY").
		Return(models.VerificationResult{IsValid: false, StudentName: "Ghost", BlobID: "bafyghost"}, nil)

	st, err := NewController(client).Verify(context.Background(), "LEAKY")
	require.NoError(t, err)
	assert.False(t, st.ShowStudent())
	assert.False(t, st.ShowImage())
	assert.Equal(t, MsgInvalid, st.Message)
}

func TestValidWithoutBlobRendersStatusOnly(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "NOIMG").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe"}, nil)

	st, err := NewController(client).Verify(context.Background(), "NOIMG")
	require.NoError(t, err)
	assert.True(t, st.ShowStudent())
	assert.False(t, st.ShowImage())
}

func TestVerifyEmptyCertID(t *testing.T) {
	client := new(MockClient)
	st, err := NewController(client).Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyCertID)
	assert.False(t, st.Loading)
	client.AssertNotCalled(t, "VerifyCertificate", mock.Anything, mock.Anything)
}

func TestVerifyClientFailureClearsLoading(t *testing.T) {
	boom := errors.New("rpc unavailable")
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{}, boom)

	st, err := NewController(client).Verify(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.ErrorIs(t, err, boom)

	assert.False(t, st.Loading)
	assert.False(t, st.IsValid)
	assert.Equal(t, MsgVerificationFailed, st.Message)
	assert.Equal(t, PhaseFailed, st.Phase)
}

func TestVerifyClientPanicClearsLoading(t *testing.T) {
	st, err := NewController(panicClient{}).Verify(context.Background(), "ABC123")
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.False(t, st.Loading)
	assert.Equal(t, MsgVerificationFailed, st.Message)
}

func TestVerifySetsLoadingBeforeCallAndClearsPreviousResult(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil).Once()
	client.On("VerifyCertificate", mock.Anything, "XYZ000").
		Return(models.VerificationResult{}, nil).Once()

	c := NewController(client)
	_, err := c.Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	c.ImageLoadFailed()

	var seen []ViewState
	c.OnChange(func(s ViewState) { seen = append(seen, s) })

	_, err = c.Verify(context.Background(), "XYZ000")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	loading := seen[0]
	assert.True(t, loading.Loading)
	assert.Equal(t, PhaseLoading, loading.Phase)
	assert.Equal(t, "XYZ000", loading.CertID)
	assert.False(t, loading.IsValid)
	assert.Empty(t, loading.StudentName)
	assert.Empty(t, loading.BlobID)
	assert.Empty(t, loading.Message)
	assert.Equal(t, LabelVerifying, loading.ButtonLabel())
	assert.True(t, loading.ButtonDisabled())

	assert.False(t, seen[1].Loading)
	assert.Equal(t, LabelVerify, seen[1].ButtonLabel())
}

func TestVerifyRejectsReentryWhileLoading(t *testing.T) {
	bc := newBlockingClient(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil)
	c := NewController(bc)

	var wg sync.WaitGroup
	wg.Add(1)
	var first ViewState
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = c.Verify(context.Background(), "ABC123")
	}()
	<-bc.started

	st, err := c.Verify(context.Background(), "OTHER")
	assert.ErrorIs(t, err, ErrVerificationInFlight)
	assert.True(t, st.Loading)
	assert.Equal(t, "ABC123", st.CertID)
	assert.True(t, c.Snapshot().Loading)

	close(bc.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, first.Loading)
	assert.Equal(t, "Jane Doe", first.StudentName)
}

func TestVerifyCancelledContextLandsInFailed(t *testing.T) {
	bc := newBlockingClient(models.VerificationResult{}, nil)
	c := NewController(bc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var st ViewState
	var err error
	go func() {
		defer close(done)
		st, err = c.Verify(ctx, "ABC123")
	}()
	<-bc.started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("verify did not return after cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, st.Loading)
	assert.Equal(t, PhaseFailed, st.Phase)
}

func TestImageLoadFailedKeepsValidity(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil)

	c := NewController(client)
	_, err := c.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	st := c.ImageLoadFailed()
	assert.Equal(t, MsgImageFailed, st.Message)
	assert.True(t, st.IsValid)
	assert.True(t, st.ShowStudent())
	assert.True(t, st.ShowImage())
}

func TestImageLoadFailedIgnoredWithoutImage(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "XYZ000").Return(models.VerificationResult{}, nil)

	c := NewController(client)
	_, err := c.Verify(context.Background(), "XYZ000")
	require.NoError(t, err)

	assert.Equal(t, MsgInvalid, c.ImageLoadFailed().Message)
}

func TestSetCertIDKeepsResult(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil)

	c := NewController(client)
	assert.True(t, c.Snapshot().ButtonDisabled())
	assert.False(t, c.SetCertID("ABC").ButtonDisabled())

	_, err := c.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	st := c.SetCertID("ABC1234")
	assert.Equal(t, "ABC1234", st.CertID)
	assert.True(t, st.IsValid)
	assert.Equal(t, "Jane Doe", st.StudentName)
}

func TestVerifyRecordsAttempts(t *testing.T) {
	boom := errors.New("rpc unavailable")
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").
		Return(models.VerificationResult{IsValid: true, StudentName: "Jane Doe", BlobID: "bafy123"}, nil)
	client.On("VerifyCertificate", mock.Anything, "XYZ000").Return(models.VerificationResult{}, nil)
	client.On("VerifyCertificate", mock.Anything, "ERR").Return(models.VerificationResult{}, boom)

	rec := new(MockRecorder)
	rec.On("Record", mock.Anything, mock.MatchedBy(func(a *models.VerificationAttempt) bool {
		return a.CertID == "ABC123" && a.Outcome == models.OutcomeValid && a.StudentName == "Jane Doe" && a.BlobID == "bafy123"
	})).Return(nil).Once()
	rec.On("Record", mock.Anything, mock.MatchedBy(func(a *models.VerificationAttempt) bool {
		return a.CertID == "XYZ000" && a.Outcome == models.OutcomeInvalid && a.Error == ""
	})).Return(nil).Once()
	rec.On("Record", mock.Anything, mock.MatchedBy(func(a *models.VerificationAttempt) bool {
		return a.CertID == "ERR" && a.Outcome == models.OutcomeFailed && a.Error != ""
	})).Return(errors.New("db down")).Once()

	c := NewController(client, WithRecorder(rec))
	_, err := c.Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	_, err = c.Verify(context.Background(), "XYZ000")
	require.NoError(t, err)

	// a failing audit write never changes the verification outcome
	st, err := c.Verify(context.Background(), "ERR")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, MsgVerificationFailed, st.Message)

	rec.AssertExpectations(t)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "loading", PhaseLoading.String())
	assert.Equal(t, "resolved_valid", PhaseResolvedValid.String())
	assert.Equal(t, "resolved_invalid", PhaseResolvedInvalid.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.False(t, PhaseLoading.Terminal())
	assert.True(t, PhaseFailed.Terminal())
}

func TestMessageTone(t *testing.T) {
	assert.Equal(t, "success", ViewState{Message: "Verification successful"}.MessageTone())
	assert.Equal(t, "error", ViewState{Message: MsgImageFailed}.MessageTone())
}

func TestVerifyRecordsDuration(t *testing.T) {
	client := new(MockClient)
	client.On("VerifyCertificate", mock.Anything, "ABC123").Return(models.VerificationResult{}, nil)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 250 * time.Millisecond)
	}

	rec := new(MockRecorder)
	rec.On("Record", mock.Anything, mock.MatchedBy(func(a *models.VerificationAttempt) bool {
		return a.DurationMs == 250 && a.CreatedAt.After(base)
	})).Return(nil).Once()

	_, err := NewController(client, WithRecorder(rec), withClock(clock)).Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	rec.AssertExpectations(t)
}
