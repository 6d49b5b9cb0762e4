package stt

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recvStep struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

// fakeSession replays scripted responses, then blocks until CloseSend
type fakeSession struct {
	grpc.ClientStream

	mu      sync.Mutex
	steps   []recvStep
	audio   [][]byte
	sendErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession(steps ...recvStep) *fakeSession {
	return &fakeSession{steps: steps, closed: make(chan struct{})}
}

func (f *fakeSession) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.audio = append(f.audio, req.GetAudioContent())
	return nil
}

func (f *fakeSession) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	f.mu.Lock()
	if len(f.steps) > 0 {
		step := f.steps[0]
		f.steps = f.steps[1:]
		f.mu.Unlock()
		return step.resp, step.err
	}
	f.mu.Unlock()

	<-f.closed
	return nil, io.EOF
}

func (f *fakeSession) CloseSend() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.audio...)
}

// sessions hands out the given sessions in order
type sessions struct {
	mu    sync.Mutex
	queue []*fakeSession
	opens int
}

func (s *sessions) open(_ context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, status.Error(codes.Unavailable, "no more sessions")
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.opens++
	return next, nil
}

func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func finalResponse(text string) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
			IsFinal:      true,
		}},
	}
}

func nextResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case res, ok := <-results:
		require.True(t, ok, "results closed early")
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Result{}
	}
}

func TestGoogleStream_RestartsAtDurationLimit(t *testing.T) {
	first := newFakeSession(
		recvStep{resp: finalResponse("hello there")},
		recvStep{err: status.Error(codes.OutOfRange, "Exceeded maximum allowed stream duration of 305 seconds.")},
	)
	second := newFakeSession(recvStep{resp: finalResponse("still here")})
	src := &sessions{queue: []*fakeSession{first, second}}

	s, err := newGoogleStream(context.Background(), src.open, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, Result{Text: "hello there", Final: true}, nextResult(t, s.Results()))
	assert.Equal(t, Result{Text: "still here", Final: true}, nextResult(t, s.Results()))
	assert.Equal(t, 2, src.count())

	require.NoError(t, s.Write([]byte{0x01}))
	assert.Equal(t, [][]byte{{0x01}}, second.frames(), "audio goes to the new session")

	require.NoError(t, s.Close())
	_, open := <-s.Results()
	assert.False(t, open)
}

func TestGoogleStream_WriteAfterServerEndReopens(t *testing.T) {
	first := newFakeSession()
	first.sendErr = io.EOF
	second := newFakeSession()
	src := &sessions{queue: []*fakeSession{first, second}}

	s, err := newGoogleStream(context.Background(), src.open, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Write([]byte{0x0a, 0x0b}))
	assert.Equal(t, [][]byte{{0x0a, 0x0b}}, second.frames())
	assert.Equal(t, 2, src.count())

	require.NoError(t, s.Write([]byte{0x0c}))
	assert.Len(t, second.frames(), 2)

	require.NoError(t, s.Close())
	assert.Equal(t, 2, src.count(), "closing does not open another session")
}

func TestGoogleStream_CloseDoesNotRestart(t *testing.T) {
	first := newFakeSession(recvStep{resp: finalResponse("bye")})
	src := &sessions{queue: []*fakeSession{first, newFakeSession()}}

	s, err := newGoogleStream(context.Background(), src.open, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "bye", nextResult(t, s.Results()).Text)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, open := <-s.Results()
	assert.False(t, open)
	assert.Equal(t, 1, src.count())
}

func TestGoogleStream_FailedRestartClosesResults(t *testing.T) {
	first := newFakeSession(recvStep{err: status.Error(codes.OutOfRange, "stream duration exceeded")})
	first.sendErr = io.EOF
	src := &sessions{queue: []*fakeSession{first}}

	s, err := newGoogleStream(context.Background(), src.open, zerolog.Nop())
	require.NoError(t, err)

	select {
	case _, open := <-s.Results():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("results not closed after failed restart")
	}

	assert.ErrorIs(t, s.Write([]byte{0x01}), errStreamClosed)
	require.NoError(t, s.Close())
}

func TestGoogleStream_OtherErrorsEndStream(t *testing.T) {
	first := newFakeSession(recvStep{err: status.Error(codes.InvalidArgument, "bad sample rate")})
	src := &sessions{queue: []*fakeSession{first, newFakeSession()}}

	s, err := newGoogleStream(context.Background(), src.open, zerolog.Nop())
	require.NoError(t, err)

	select {
	case _, open := <-s.Results():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("results not closed")
	}
	assert.Equal(t, 1, src.count())
	require.NoError(t, s.Close())
}
