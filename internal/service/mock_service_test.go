// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync/atomic"
)

// Call counters are atomic: oklog/run invokes Run and Shutdown on
// separate goroutines.

type mockService struct {
	name string
}

func (m *mockService) Name() string { return m.name }

func call(n *atomic.Int32, fn func() error) error {
	n.Add(1)
	if fn == nil {
		return nil
	}
	return fn()
}

func callCtx(ctx context.Context, n *atomic.Int32, fn func(context.Context) error) error {
	n.Add(1)
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// mockInitializer is an Initializer only
type mockInitializer struct {
	mockService
	initFn    func() error
	initCount atomic.Int32
}

func (m *mockInitializer) Init() error { return call(&m.initCount, m.initFn) }

// mockInitShutdownService is an Initializer and a Shutdowner
type mockInitShutdownService struct {
	mockService
	initFn        func() error
	shutdownFn    func() error
	initCount     atomic.Int32
	shutdownCount atomic.Int32
}

func (m *mockInitShutdownService) Init() error     { return call(&m.initCount, m.initFn) }
func (m *mockInitShutdownService) Shutdown() error { return call(&m.shutdownCount, m.shutdownFn) }

// mockRunner is a Runner only
type mockRunner struct {
	mockService
	runFn    func(ctx context.Context) error
	runCount atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context) error { return callCtx(ctx, &m.runCount, m.runFn) }

// mockRunShutdownService is a Runner and a Shutdowner
type mockRunShutdownService struct {
	mockService
	runFn         func(ctx context.Context) error
	shutdownFn    func() error
	runCount      atomic.Int32
	shutdownCount atomic.Int32
}

func (m *mockRunShutdownService) Run(ctx context.Context) error {
	return callCtx(ctx, &m.runCount, m.runFn)
}

func (m *mockRunShutdownService) Shutdown() error { return call(&m.shutdownCount, m.shutdownFn) }
