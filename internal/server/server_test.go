package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/controller"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeBackend struct {
	mu        sync.Mutex
	delivered []types.InboundMessage
	err       error
}

func (f *fakeBackend) GetStatus() controller.Status {
	return controller.Status{
		SessionID:  "s-1",
		Date:       "2026-03-02",
		Round:      1,
		Schedule:   []string{"10:20", "14:00"},
		NextProbe:  "14:00",
		NextCutoff: time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		Employees:  3,
		CheckedIn:  2,
		Late:       1,
	}
}

func (f *fakeBackend) Schedule() schedule.DailySchedule {
	return schedule.DailySchedule{types.NewTimeOfDay(10, 20), types.NewTimeOfDay(14, 0)}
}

func (f *fakeBackend) Deliver(msg types.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, msg)
	return nil
}

func startServer(t *testing.T, backend Backend) *AdminClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterAdminServer(gs, NewServer(backend))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewAdminClient(conn)
}

func TestGetStatus(t *testing.T) {
	client := startServer(t, &fakeBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.GetStatus(ctx)
	require.NoError(t, err)

	m := st.AsMap()
	assert.Equal(t, "s-1", m["session_id"])
	assert.Equal(t, "2026-03-02", m["date"])
	assert.Equal(t, float64(1), m["round"])
	assert.Equal(t, []any{"10:20", "14:00"}, m["schedule"])
	assert.Equal(t, "2026-03-02T21:00:00Z", m["next_cutoff"])
	assert.Equal(t, float64(1), m["late"])
}

func TestGetSchedule(t *testing.T) {
	client := startServer(t, &fakeBackend{})

	list, err := client.GetSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"10:20", "14:00"}, list.AsSlice())
}

func TestDeliver(t *testing.T) {
	backend := &fakeBackend{}
	client := startServer(t, backend)

	when := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	err := client.Deliver(context.Background(), types.InboundMessage{
		ChatID:       "-100",
		SenderID:     "42",
		SenderHandle: "alice",
		Text:         "here",
		At:           when,
	})
	require.NoError(t, err)

	require.Len(t, backend.delivered, 1)
	got := backend.delivered[0]
	assert.Equal(t, "-100", got.ChatID)
	assert.Equal(t, types.EmployeeID("42"), got.SenderID)
	assert.Equal(t, "alice", got.SenderHandle)
	assert.True(t, got.At.Equal(when))
}

func TestDeliverErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		msg  types.InboundMessage
		code codes.Code
	}{
		{"missing sender", nil, types.InboundMessage{ChatID: "-100"}, codes.InvalidArgument},
		{"inbox full", controller.ErrInboxFull, types.InboundMessage{ChatID: "-100", SenderID: "1"}, codes.ResourceExhausted},
		{"stopped", controller.ErrStopped, types.InboundMessage{ChatID: "-100", SenderID: "1"}, codes.Unavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := startServer(t, &fakeBackend{err: tc.err})
			err := client.Deliver(context.Background(), tc.msg)
			require.Error(t, err)
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}
