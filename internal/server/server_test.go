package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/desertwitch/netwatch/internal/config"
	"github.com/desertwitch/netwatch/internal/devices"
)

func newTestServer(t *testing.T) (*Server, *config.Handle, *devices.Devices) {
	t.Helper()

	fsys := afero.NewMemMapFs()

	doc := `{"web_port":8080,"ping_interval":0,"smtp":null,"users":[{"name":"admin","password":"hunter2"}]}`
	require.NoError(t, afero.WriteFile(fsys, "data/config.json", []byte(doc), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "data/devices.json", []byte("[]"), 0o644))
	require.NoError(t, fsys.MkdirAll("web", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "web/index.html", []byte("hello"), 0o644))

	h, err := config.Load(fsys, "data/config.json")
	require.NoError(t, err)

	reg := devices.New(nil, nil, nil, time.Millisecond)
	require.NoError(t, reg.Load(fsys, "data/devices.json"))

	srv := New(reg, h, nil, nil, fsys, "data", "web")

	return srv, h, reg
}

func Test_Server_LoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(loginRequest{Name: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "error", resp.Result)
}

func Test_Server_LoginAcceptsGoodCredentialsAndGatesAPI(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	// Unauthenticated request to a guarded route is rejected.
	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body, _ := json.Marshal(loginRequest{Name: "admin", Password: "hunter2"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	loginRec := httptest.NewRecorder()
	srv.router.ServeHTTP(loginRec, loginReq)
	require.Equal(t, http.StatusOK, loginRec.Code)

	cookies := loginRec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, tokenCookieName, cookies[0].Name)
	require.Len(t, cookies[0].Value, tokenLength)

	req2 := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req2.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	srv.router.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func Test_Server_PostDeviceAssignsIDAndPersists(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)

	token := authenticate(t, srv)

	name := "edge"
	conf := devices.DeviceConf{Name: &name}
	body, _ := json.Marshal(conf)

	req := httptest.NewRequest(http.MethodPost, "/api/device", bytes.NewReader(body))
	req.AddCookie(token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	confs := reg.Confs()
	require.Len(t, confs, 1)
	require.Equal(t, "edge", *confs[0].Name)
}

func Test_Server_DeleteDeviceRemovesIt(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	token := authenticate(t, srv)

	reg.Add(devices.DeviceConf{ID: 4})

	req := httptest.NewRequest(http.MethodDelete, "/api/device/4", nil)
	req.AddCookie(token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := reg.Device(4)
	require.Error(t, err)
}

func authenticate(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()

	body, _ := json.Marshal(loginRequest{Name: "admin", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	return cookies[0]
}
