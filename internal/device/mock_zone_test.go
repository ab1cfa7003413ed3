// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockZone struct {
	name   string
	index  int
	path   string
	energy Energy
	max    Energy
	err    error
}

func (m *mockZone) Name() string            { return m.name }
func (m *mockZone) Index() int              { return m.index }
func (m *mockZone) Path() string            { return m.path }
func (m *mockZone) Energy() (Energy, error) { return m.energy, m.err }
func (m *mockZone) MaxEnergy() Energy       { return m.max }

type mockSysFSReader struct {
	zones []EnergyZone
	err   error
}

func (m mockSysFSReader) Zones() ([]EnergyZone, error) {
	return m.zones, m.err
}

type raplFixture struct {
	dir    string
	name   string
	energy uint64
}

// writeRaplFixtures creates a powercap tree below a temporary sysfs root
func writeRaplFixtures(t *testing.T, zones ...raplFixture) string {
	t.Helper()
	root := t.TempDir()
	for _, z := range zones {
		dir := filepath.Join(root, "class", "powercap", z.dir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		write := func(file, content string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0o644))
		}
		write("name", z.name)
		write("energy_uj", strconv.FormatUint(z.energy, 10))
		write("max_energy_range_uj", "262143328850")
	}
	return root
}
