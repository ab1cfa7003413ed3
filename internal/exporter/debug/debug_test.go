// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package debug

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	testingclock "k8s.io/utils/clock/testing"
)

// muxRegistry registers handlers on a ServeMux
type muxRegistry struct {
	mux *http.ServeMux
}

func (m *muxRegistry) Register(endpoint, _, _ string, handler http.Handler) error {
	m.mux.Handle(endpoint, handler)
	return nil
}

// MockAPIRegistry mocks the APIRegistry interface
type MockAPIRegistry struct {
	mock.Mock
}

func (m *MockAPIRegistry) Register(endpoint, summary, description string, handler http.Handler) error {
	args := m.Called(endpoint, summary, description, handler)
	return args.Error(0)
}

type stubEnergy struct{}

func (stubEnergy) GetRailInfo() ([]powerstats.RailInfo, error) {
	return []powerstats.RailInfo{
		{Index: 0, SubsysName: "rapl", RailName: "package", SamplingRate: 1000},
		{Index: 1, SubsysName: "rapl", RailName: "dram", SamplingRate: 1000},
	}, nil
}

func (stubEnergy) GetEnergyData(indices []int32) ([]powerstats.EnergyData, error) {
	all := []powerstats.EnergyData{
		{Index: 0, TimestampMs: 100, EnergyUWs: 5000},
		{Index: 1, TimestampMs: 100, EnergyUWs: 7000},
	}
	if len(indices) == 0 {
		return all, nil
	}
	var out []powerstats.EnergyData
	var err error
	for _, i := range indices {
		if i < 0 || int(i) >= len(all) {
			err = powerstats.ErrBadValue
			continue
		}
		out = append(out, all[i])
	}
	return out, err
}

type stubResidency struct {
	fail bool
}

func (stubResidency) GetInfo() map[string][]powerstats.State {
	return map[string][]powerstats.State{
		"cpu0": {{ID: 0, Name: "C0"}, {ID: 1, Name: "C1"}},
	}
}

func (s stubResidency) GetResults(results map[string][]powerstats.StateResidencyData) error {
	if s.fail {
		return errors.New("read failed")
	}
	results["cpu0"] = []powerstats.StateResidencyData{
		{StateID: 0, TotalTimeInStateMs: 10, TotalStateEntryCount: 1},
		{StateID: 1, TotalTimeInStateMs: 20, TotalStateEntryCount: 2},
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, res stubResidency) *httptest.Server {
	t.Helper()
	logger := discardLogger()

	stats := powerstats.New(powerstats.WithLogger(logger))
	stats.SetEnergyDataProvider(stubEnergy{})
	require.NoError(t, stats.AddStateResidencyDataProvider(res))

	reporter := powerstats.NewReporter(stats,
		powerstats.WithReporterLogger(logger),
		powerstats.WithClock(testingclock.NewFakePassiveClock(time.Unix(0, 0))))

	reg := &muxRegistry{mux: http.NewServeMux()}
	exporter := NewExporter(reg, reporter, stats, WithLogger(logger))
	require.NoError(t, exporter.Init())
	assert.Equal(t, "debug", exporter.Name())

	srv := httptest.NewServer(reg.mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

type decoded[T any] struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   T      `json:"data"`
}

func getJSON[T any](t *testing.T, url string) (int, decoded[T]) {
	t.Helper()
	code, body := get(t, url)
	var d decoded[T]
	require.NoError(t, json.Unmarshal([]byte(body), &d), body)
	return code, d
}

func TestDump(t *testing.T) {
	srv := newTestServer(t, stubResidency{})

	code, body := get(t, srv.URL+"/debug/powerstats")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "PowerStats state residencies")
	assert.Contains(t, body, "package")
	assert.NotContains(t, body, "Elapsed time")

	code, body = get(t, srv.URL+"/debug/powerstats?delta")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Elapsed time: 0 ms")
}

func TestDump_DeltaValue(t *testing.T) {
	srv := newTestServer(t, stubResidency{})

	tt := []struct {
		query string
		code  int
		delta bool
	}{
		{query: "?delta=true", code: http.StatusOK, delta: true},
		{query: "?delta=1", code: http.StatusOK, delta: true},
		{query: "?delta=false", code: http.StatusOK},
		{query: "?delta=0", code: http.StatusOK},
		{query: "?delta=maybe", code: http.StatusBadRequest},
	}
	for _, tc := range tt {
		t.Run(tc.query, func(t *testing.T) {
			code, body := get(t, srv.URL+"/debug/powerstats"+tc.query)
			assert.Equal(t, tc.code, code)
			if tc.code != http.StatusOK {
				assert.Contains(t, body, "invalid delta value")
				return
			}
			if tc.delta {
				assert.Contains(t, body, "Elapsed time")
			} else {
				assert.NotContains(t, body, "Elapsed time")
			}
		})
	}
}

func TestRailsAndEnergy(t *testing.T) {
	srv := newTestServer(t, stubResidency{})

	code, rails := getJSON[[]powerstats.RailInfo](t, srv.URL+"/api/v1/rails")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", rails.Status)
	assert.Len(t, rails.Data, 2)

	code, energy := getJSON[[]powerstats.EnergyData](t, srv.URL+"/api/v1/energy?rail=1")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, energy.Data, 1)
	assert.Equal(t, int64(7000), energy.Data[0].EnergyUWs)

	t.Run("partial results with bad index", func(t *testing.T) {
		code, energy := getJSON[[]powerstats.EnergyData](t, srv.URL+"/api/v1/energy?rail=0,9")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "BAD_VALUE", energy.Status)
		assert.NotEmpty(t, energy.Error)
		require.Len(t, energy.Data, 1)
		assert.Equal(t, int32(0), energy.Data[0].Index)
	})

	t.Run("unparsable index", func(t *testing.T) {
		code, energy := getJSON[[]powerstats.EnergyData](t, srv.URL+"/api/v1/energy?rail=abc")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "BAD_VALUE", energy.Status)
		assert.Empty(t, energy.Data)
	})
}

func TestEntitiesAndResidency(t *testing.T) {
	srv := newTestServer(t, stubResidency{})

	code, entities := getJSON[[]powerstats.PowerEntityInfo](t, srv.URL+"/api/v1/entities")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, entities.Data, 1)
	assert.Equal(t, "cpu0", entities.Data[0].Name)

	code, res := getJSON[[]powerstats.StateResidencyResult](t, srv.URL+"/api/v1/residency")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, res.Data, 1)
	assert.Len(t, res.Data[0].StateResidencyData, 2)

	code, res = getJSON[[]powerstats.StateResidencyResult](t, srv.URL+"/api/v1/residency?entity=0&entity=5")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Len(t, res.Data, 1)
}

func TestResidencyFailedTransaction(t *testing.T) {
	srv := newTestServer(t, stubResidency{fail: true})

	code, res := getJSON[[]powerstats.StateResidencyResult](t, srv.URL+"/api/v1/residency")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "FAILED_TRANSACTION", res.Status)
	assert.Empty(t, res.Data)
}

func TestInitRegisterError(t *testing.T) {
	reg := &MockAPIRegistry{}
	regErr := errors.New("taken")
	reg.On("Register", "/debug/powerstats", mock.Anything, mock.Anything, mock.Anything).Return(regErr)

	exporter := NewExporter(reg, nil, nil, WithLogger(discardLogger()))
	err := exporter.Init()
	assert.ErrorIs(t, err, regErr)
	assert.ErrorContains(t, err, "/debug/powerstats")
	reg.AssertNumberOfCalls(t, "Register", 1)
}

func TestHTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, httpCode(powerstats.StatusOK))
	assert.Equal(t, http.StatusBadRequest, httpCode(powerstats.StatusBadValue))
	assert.Equal(t, http.StatusBadGateway, httpCode(powerstats.StatusFailedTransaction))
}
