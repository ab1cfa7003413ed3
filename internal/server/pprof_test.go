// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAPIService mocks APIService
type MockAPIService struct {
	mock.Mock
}

func (m *MockAPIService) Register(path, name, description string, handler http.Handler) error {
	args := m.Called(path, name, description, handler)
	return args.Error(0)
}

func (m *MockAPIService) Name() string {
	return "mockApiService"
}

func TestPprof_Init(t *testing.T) {
	t.Run("registers profile handlers", func(t *testing.T) {
		api := &MockAPIService{}
		api.On("Register", "/debug/pprof/", "pprof", "Runtime profiling data", mock.AnythingOfType("*http.ServeMux")).Return(nil)

		p := NewPprof(api)
		assert.Equal(t, "pprof", p.Name())
		assert.NoError(t, p.Init())
		api.AssertExpectations(t)
	})

	t.Run("returns registration error", func(t *testing.T) {
		api := &MockAPIService{}
		api.On("Register", "/debug/pprof/", "pprof", "Runtime profiling data", mock.Anything).Return(assert.AnError)

		assert.ErrorIs(t, NewPprof(api).Init(), assert.AnError)
	})

	t.Run("enables contention profiles", func(t *testing.T) {
		api := &MockAPIService{}
		api.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		p := NewPprof(api, WithContentionProfiles(1, 5))
		require.NoError(t, p.Init())
		t.Cleanup(func() {
			runtime.SetBlockProfileRate(0)
			runtime.SetMutexProfileFraction(0)
		})

		// SetMutexProfileFraction returns the previous fraction
		assert.Equal(t, 5, runtime.SetMutexProfileFraction(-1))
	})
}

func TestPprofHandlers(t *testing.T) {
	mux := pprofHandlers()

	paths := []string{
		"/debug/pprof/",
		"/debug/pprof/cmdline",
		"/debug/pprof/symbol",
		"/debug/pprof/heap",
		"/debug/pprof/goroutine?debug=1",
		"/debug/pprof/allocs",
		"/debug/pprof/threadcreate",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}
