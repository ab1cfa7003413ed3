// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// GetRailEnergyParams defines parameters for get_rail_energy tool
type GetRailEnergyParams struct {
	Rails []int32 `json:"rails,omitempty" jsonschema:"Rail indices to read (default: all rails)"`
}

// GetStateResidencyParams defines parameters for get_state_residency tool
type GetStateResidencyParams struct {
	Entities []int32 `json:"entities,omitempty" jsonschema:"Power entity ids to read (default: all entities)"`
}

// DumpParams defines parameters for dump tool
type DumpParams struct {
	Delta bool `json:"delta,omitempty" jsonschema:"Show changes since the previous delta report"`
}

// RailEnergy is a rail reading joined with the rail metadata
type RailEnergy struct {
	Index       int32   `json:"index"`
	Subsystem   string  `json:"subsystem"`
	Rail        string  `json:"rail"`
	TimestampMs int64   `json:"timestampMs"`
	EnergyUWs   int64   `json:"energyUWs"`
	EnergyJ     float64 `json:"energyJoules"`
}

// StateResidency is the residency of one state joined with its names
type StateResidency struct {
	State                string `json:"state"`
	TotalTimeInStateMs   int64  `json:"totalTimeInStateMs"`
	TotalStateEntryCount int64  `json:"totalStateEntryCount"`
	LastEntryTimestampMs int64  `json:"lastEntryTimestampMs"`
}

// EntityResidency holds the state residencies of one power entity
type EntityResidency struct {
	ID     int32            `json:"id"`
	Entity string           `json:"entity"`
	States []StateResidency `json:"states"`
}

type toolResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data"`
}

// handleGetRailEnergy handles the get_rail_energy tool call
func (s *Server) handleGetRailEnergy(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[GetRailEnergyParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling get_rail_energy request", "rails", params.Arguments.Rails)

	rails, err := s.stats.GetRailInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get rail info: %w", err)
	}
	info := make(map[int32]powerstats.RailInfo, len(rails))
	for _, r := range rails {
		info[r.Index] = r
	}

	data, qerr := s.stats.GetEnergyData(params.Arguments.Rails)
	out := make([]RailEnergy, 0, len(data))
	for _, d := range data {
		r, ok := info[d.Index]
		if !ok {
			r = powerstats.RailInfo{SubsysName: "unknown", RailName: "unknown"}
		}
		out = append(out, RailEnergy{
			Index:       d.Index,
			Subsystem:   r.SubsysName,
			Rail:        r.RailName,
			TimestampMs: d.TimestampMs,
			EnergyUWs:   d.EnergyUWs,
			EnergyJ:     float64(d.EnergyUWs) / 1e6,
		})
	}
	return toolResult(out, qerr)
}

// handleGetStateResidency handles the get_state_residency tool call
func (s *Server) handleGetStateResidency(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[GetStateResidencyParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling get_state_residency request", "entities", params.Arguments.Entities)

	entities := map[int32]powerstats.PowerEntityInfo{}
	for _, e := range s.stats.GetPowerEntityInfo() {
		entities[e.ID] = e
	}

	results, qerr := s.stats.GetPowerEntityStateResidencyData(params.Arguments.Entities)
	out := make([]EntityResidency, 0, len(results))
	for _, r := range results {
		entity, ok := entities[r.EntityID]
		name := "unknown"
		if ok {
			name = entity.Name
		}
		er := EntityResidency{ID: r.EntityID, Entity: name}
		for _, d := range r.StateResidencyData {
			state := "unknown"
			for _, st := range entity.States {
				if st.ID == d.StateID {
					state = st.Name
					break
				}
			}
			er.States = append(er.States, StateResidency{
				State:                state,
				TotalTimeInStateMs:   d.TotalTimeInStateMs,
				TotalStateEntryCount: d.TotalStateEntryCount,
				LastEntryTimestampMs: d.LastEntryTimestampMs,
			})
		}
		out = append(out, er)
	}
	return toolResult(out, qerr)
}

// handleDump handles the dump tool call
func (s *Server) handleDump(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[DumpParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling dump request", "delta", params.Arguments.Delta)

	var args []string
	if params.Arguments.Delta {
		args = []string{powerstats.DeltaArg}
	}
	sb := &strings.Builder{}
	s.reporter.Dump(sb, args)

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
	}, nil
}

// toolResult renders data as JSON. A query error marks the result as an
// error while keeping the partial data.
func toolResult(data any, err error) (*mcp.CallToolResultFor[any], error) {
	status := powerstats.StatusFromError(err)
	resp := toolResponse{Status: status.String(), Data: data}
	if err != nil {
		resp.Error = err.Error()
	}

	text, merr := json.MarshalIndent(resp, "", "  ")
	if merr != nil {
		return nil, fmt.Errorf("failed to encode result: %w", merr)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: err != nil,
	}, nil
}
