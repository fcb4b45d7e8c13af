package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet_chat/internal/domain"
)

func TestRegistry_RegisterIsLastWriteWins(t *testing.T) {
	reg := NewRegistry()
	reg.Attach("c1", 0, &fakeSink{})

	reg.Register("c1", "Ann", "A", 1)
	conn, ok := reg.Register("c1", "Annie", "B", 0)
	require.True(t, ok)

	assert.Equal(t, domain.Connection{ID: "c1", Name: "Annie", Room: "B", UserID: 1}, conn)
	assert.Empty(t, reg.MembersOf("A"))
	assert.Equal(t, []domain.Connection{conn}, reg.MembersOf("B"))
	assert.Equal(t, []domain.RoomLabel{"B"}, reg.AllRooms())
}

func TestRegistry_RegisterUnknownID(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Register("ghost", "Ann", "A", 3)
	require.False(t, ok)

	reg.Attach("gone", 0, &fakeSink{})
	reg.Unregister("gone")
	_, ok = reg.Register("gone", "Bob", "A", 0)
	require.False(t, ok)

	assert.Zero(t, reg.Count())
	assert.Empty(t, reg.AllRooms())
	assert.Empty(t, reg.MembersOf("A"))
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	reg.Attach("c1", 0, &fakeSink{})
	reg.Register("c1", "Ann", "A", 1)

	prev, ok := reg.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomLabel("A"), prev.Room)

	_, ok = reg.Unregister("c1")
	assert.False(t, ok)
	_, ok = reg.Get("c1")
	assert.False(t, ok)
	assert.Empty(t, reg.AllRooms())
	assert.Zero(t, reg.Count())
}

func TestRegistry_Leave(t *testing.T) {
	reg := NewRegistry()
	reg.Attach("c1", 0, &fakeSink{})
	reg.Register("c1", "Ann", "A", 1)

	prev, ok := reg.Leave("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomLabel("A"), prev.Room)

	conn, ok := reg.Get("c1")
	require.True(t, ok)
	assert.False(t, conn.Joined())
	assert.Equal(t, "Ann", conn.Name)
	assert.Empty(t, reg.MembersOf("A"))

	_, ok = reg.Leave("missing")
	assert.False(t, ok)
}

func TestRegistry_RoomsAndSummaries(t *testing.T) {
	reg := NewRegistry()
	reg.Attach("idle", 0, &fakeSink{})
	for _, c := range []struct {
		id   domain.ConnectionID
		name string
		room domain.RoomLabel
	}{{"c3", "Cid", "beta"}, {"c1", "Ann", "alpha"}, {"c2", "Bob", "alpha"}} {
		reg.Attach(c.id, 0, &fakeSink{})
		reg.Register(c.id, c.name, c.room, 0)
	}

	assert.Equal(t, []domain.RoomLabel{"alpha", "beta"}, reg.AllRooms())
	assert.Equal(t, []domain.RoomSummary{{Room: "alpha", Members: 2}, {Room: "beta", Members: 1}}, reg.Summaries())

	members := reg.MembersOf("alpha")
	require.Len(t, members, 2)
	assert.Equal(t, domain.ConnectionID("c1"), members[0].ID)
	assert.Equal(t, domain.ConnectionID("c2"), members[1].ID)

	assert.Empty(t, reg.MembersOf(""))
	assert.Equal(t, 4, reg.Count())
}

func TestRegistry_TargetsSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Attach("c1", 0, &fakeSink{})
	reg.Attach("c2", 0, &fakeSink{})
	reg.Register("c1", "Ann", "A", 0)
	reg.Register("c2", "Bob", "A", 0)

	targets := reg.targets("A", "c1")
	reg.Unregister("c2")

	require.Len(t, targets, 1)
	assert.Equal(t, domain.ConnectionID("c2"), targets[0].id)
	assert.Len(t, reg.allTargets(), 1)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	rooms := []domain.RoomLabel{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.ConnectionID(fmt.Sprintf("c%02d", i))
			reg.Attach(id, 0, &fakeSink{})
			for j := 0; j < 50; j++ {
				reg.Register(id, "user", rooms[(i+j)%len(rooms)], 0)
				_ = reg.MembersOf(rooms[j%len(rooms)])
				_ = reg.AllRooms()
			}
			if i%2 == 0 {
				reg.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, reg.Count())
	total := 0
	for _, room := range rooms {
		total += len(reg.MembersOf(room))
	}
	assert.Equal(t, 16, total, "every connection is in exactly one room")
}
