package bt

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"
)

func newTestManager() *BTManager {
	return NewBTManager(nil, log.New(io.Discard, "", 0), 5*time.Second)
}

func TestBTManager_ObserveFiltersByName(t *testing.T) {
	m := newTestManager()
	now := time.Unix(100, 0)

	assert.True(t, m.observe("AA", bluetooth.Address{}, "Vee_1234", -60, now))
	assert.True(t, m.observe("BB", bluetooth.Address{}, "VIT-Trainer", -40, now))
	assert.False(t, m.observe("CC", bluetooth.Address{}, "HeartStrap", -30, now))
	assert.False(t, m.observe("DD", bluetooth.Address{}, "", -30, now))

	machines := m.Machines()
	require.Len(t, machines, 2)
	assert.Equal(t, "BB", machines[0].Address, "strongest first")
	assert.Equal(t, "Vee_1234", machines[1].Name)
}

func TestBTManager_PruneStale(t *testing.T) {
	m := newTestManager()
	start := time.Unix(0, 0)
	m.observe("AA", bluetooth.Address{}, "Vee_A", -50, start)
	m.observe("BB", bluetooth.Address{}, "Vee_B", -50, start.Add(4*time.Second))

	m.pruneStale(start.Add(6 * time.Second))

	machines := m.Machines()
	require.Len(t, machines, 1)
	assert.Equal(t, "BB", machines[0].Address)
}

func TestPickMachine(t *testing.T) {
	machines := []Machine{{Address: "AA:BB", Name: "Vee_1"}, {Address: "CC:DD", Name: "Vee_2"}}

	got, ok := pickMachine(machines, "")
	require.True(t, ok)
	assert.Equal(t, "AA:BB", got.Address)

	got, ok = pickMachine(machines, "cc:dd")
	require.True(t, ok)
	assert.Equal(t, "Vee_2", got.Name)

	_, ok = pickMachine(machines, "EE:FF")
	assert.False(t, ok)
}

func TestBTManager_WaitForMachine(t *testing.T) {
	m := newTestManager()
	m.observe("AA", bluetooth.Address{}, "Vee_A", -50, time.Now())

	got, err := m.WaitForMachine(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "AA", got.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.WaitForMachine(ctx, "ZZ")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestBTManager_ConnectUnknownMachine(t *testing.T) {
	m := newTestManager()
	_, err := m.Connect(context.Background(), Machine{Address: "AA", Name: "Vee_A"}, 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
