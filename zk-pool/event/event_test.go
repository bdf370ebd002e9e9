package event

import (
	"context"
	"sync"
	"testing"

	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/stretchr/testify/require"
)

func TestEmitSpend(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open("")
	require.NoError(t, err)
	defer s.Close()

	nf := types.Nullifier(utils.MiMCHash32([]byte("nf")))

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, EmitSpend(ctx, ws, nf))
	info, err := ws.Commit()
	require.NoError(t, err)
	require.Len(t, info.Events, 1)

	evs, err := s.Events(info.Version)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	sp, err := DecodeSpend(evs[0])
	require.NoError(t, err)
	require.Equal(t, nf, sp.Nullifier)

	_, err = DecodeSpend(store.Event{Kind: "output"})
	require.ErrorIs(t, err, poolerr.ErrMalformed)

	// a discarded scope leaves no events
	ws, err = s.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, EmitSpend(ctx, ws, nf))
	require.NoError(t, ws.Discard())
	evs, err = s.Events(info.Version + 1)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()

	var (
		mtx    sync.Mutex
		direct []store.Event
		got    []store.Event
	)
	require.NoError(t, bus.Subscribe(KindSpend, func(ev store.Event) {
		direct = append(direct, ev)
	}))
	require.NoError(t, bus.SubscribeAsync(KindSpend, func(ev store.Event) {
		mtx.Lock()
		defer mtx.Unlock()
		got = append(got, ev)
	}))

	info := &store.CommitInfo{
		Version: 3,
		Events: []store.Event{
			{Kind: KindSpend, Version: 3, Seq: 0},
			{Kind: "other", Version: 3, Seq: 1},
			{Kind: KindSpend, Version: 3, Seq: 2},
		},
	}
	bus.Publish(info)
	bus.WaitAsync()

	require.Len(t, direct, 2)
	require.Equal(t, uint32(0), direct[0].Seq)
	require.Equal(t, uint32(2), direct[1].Seq)
	require.Len(t, got, 2)
}
