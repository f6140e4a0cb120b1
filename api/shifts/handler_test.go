package shifts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/infra/store"
)

func setup(t *testing.T) (*httptest.Server, *dispatch.Dispatcher) {
	t.Helper()
	d, err := dispatch.New(dispatch.Config{Timezone: "UTC"}, store.NewMemoryStore(), nil, nil, nil)
	require.NoError(t, err)
	d.SetClock(func() time.Time { return time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC) })
	_, err = d.CreateDriver(context.Background(), model.Driver{ID: "d1", Name: "Budi", Active: true})
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(d, "secret"))
	t.Cleanup(srv.Close)
	return srv, d
}

func call(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestShiftCRUD(t *testing.T) {
	srv, _ := setup(t)

	var sh model.Shift
	code := call(t, http.MethodPost, srv.URL+"/api/shifts",
		`{"driver_id":"d1","date":"2025-03-14","shift_type":"afternoon"}`, &sh)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "14:00", sh.StartTime)
	assert.Equal(t, "22:00", sh.EndTime)

	assert.Equal(t, http.StatusConflict, call(t, http.MethodPost, srv.URL+"/api/shifts",
		`{"driver_id":"d1","date":"2025-03-14","shift_type":"afternoon"}`, nil))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodPost, srv.URL+"/api/shifts",
		`{"driver_id":"ghost","date":"2025-03-14"}`, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, srv.URL+"/api/shifts",
		`{"driver_id":"d1","date":"tomorrow"}`, nil))

	var today []model.ShiftEntry
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/shifts/today", "", &today))
	require.Len(t, today, 1)
	require.NotNil(t, today[0].Driver)
	assert.Equal(t, "Budi", today[0].Driver.Name)

	require.Equal(t, http.StatusOK, call(t, http.MethodPut, srv.URL+"/api/shifts/"+sh.ID,
		`{"shift_type":"night","start_time":"22:00","end_time":"06:00"}`, &sh))
	assert.Equal(t, model.ShiftNight, sh.Type)

	var msg map[string]string
	require.Equal(t, http.StatusOK, call(t, http.MethodDelete, srv.URL+"/api/shifts/"+sh.ID, "", &msg))
	assert.Equal(t, "shift deleted", msg["message"])
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodDelete, srv.URL+"/api/shifts/"+sh.ID, "", nil))
}

func TestShiftBulkAndFilter(t *testing.T) {
	srv, _ := setup(t)

	var res bulkResponse
	code := call(t, http.MethodPost, srv.URL+"/api/shifts/bulk", `{"shifts":[
		{"driver_id":"d1","date":"2025-03-15","shift_type":"morning"},
		{"driver_id":"d1","date":"2025-03-15","shift_type":"morning"},
		{"driver_id":"d1","date":"2025-03-16"}
	]}`, &res)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 2, res.Created)

	var list []model.ShiftEntry
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/shifts?date=2025-03-16&driver_id=d1", "", &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.ShiftFullDay, list[0].Type)

	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/shifts", "", &list))
	require.Len(t, list, 2)
	assert.Equal(t, "2025-03-16", list[0].Date)

	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, srv.URL+"/api/shifts/bulk", `{"shifts":[]}`, nil))
}

func TestShiftRequiresToken(t *testing.T) {
	srv, _ := setup(t)
	resp, err := http.Get(srv.URL + "/api/shifts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
