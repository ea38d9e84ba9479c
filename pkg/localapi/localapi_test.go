package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/betterqa-sync/agent-core/pkg/observability/noop"
)

type fakeController struct {
	pauseErr  error
	resumeErr error
	privErr   error
	status    StatusView
	lastPriv  *bool
}

func (f *fakeController) Pause(ctx context.Context) error  { return f.pauseErr }
func (f *fakeController) Resume(ctx context.Context) error { return f.resumeErr }
func (f *fakeController) SetPrivateMode(ctx context.Context, enabled bool) error {
	f.lastPriv = &enabled
	return f.privErr
}
func (f *fakeController) Status() StatusView { return f.status }

func newTestRouter(ctrl Controller) http.Handler {
	r := chi.NewRouter()
	(&controlRouter{ctrl: ctrl, o11y: noop.NewProvider()}).Register(r)
	return r
}

func TestHandleStatus_ReturnsControllerStatus(t *testing.T) {
	project := "proj-1"
	ctrl := &fakeController{status: StatusView{Paused: true, CurrentProject: &project}}
	router := newTestRouter(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Paused)
	require.Equal(t, "proj-1", *got.CurrentProject)
}

func TestHandlePause_Success(t *testing.T) {
	ctrl := &fakeController{status: StatusView{Paused: true}}
	router := newTestRouter(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePause_ControllerErrorReturns500(t *testing.T) {
	ctrl := &fakeController{pauseErr: errors.New("boom")}
	router := newTestRouter(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleResume_Success(t *testing.T) {
	ctrl := &fakeController{}
	router := newTestRouter(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/resume", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePrivate_DecodesBodyAndCallsController(t *testing.T) {
	ctrl := &fakeController{}
	router := newTestRouter(ctrl)

	body, err := json.Marshal(privateModeRequest{Enabled: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/private", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ctrl.lastPriv)
	require.True(t, *ctrl.lastPriv)
}

func TestHandlePrivate_InvalidBodyReturns400(t *testing.T) {
	ctrl := &fakeController{}
	router := newTestRouter(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/private", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
