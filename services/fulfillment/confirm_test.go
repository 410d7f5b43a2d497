package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	asynqtask "giveaway-fulfillment/pkg/asynq"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeOfferConfirmer struct {
	calls chan string
	ok    bool
	err   error
}

func (f *fakeOfferConfirmer) ConfirmOffer(ctx context.Context, offerID string) (bool, error) {
	f.calls <- offerID
	return f.ok, f.err
}

func TestConfirmerEnqueuesTask(t *testing.T) {
	queue := &fakeQueue{}
	steam := &fakeOfferConfirmer{calls: make(chan string, 1), ok: true}
	c := NewTaskConfirmer(queue, steam)

	c.Dispatch(context.Background(), "c1", "9001")

	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	require.Equal(t, asynqtask.TypeTradeConfirm, task.Type())

	var p asynqtask.TradeConfirmPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, "c1", p.ClaimID)
	require.Equal(t, "9001", p.OfferID)

	require.NoError(t, c.HandleConfirm(context.Background(), task))
	require.Equal(t, "9001", <-steam.calls)
}

func TestConfirmerFailuresAreSwallowed(t *testing.T) {
	steam := &fakeOfferConfirmer{calls: make(chan string, 1), err: errors.New("session expired")}
	c := NewTaskConfirmer(nil, steam)

	task := asynq.NewTask(asynqtask.TypeTradeConfirm, []byte(`{"claim_id":"c1","offer_id":"9001"}`))
	require.NoError(t, c.HandleConfirm(context.Background(), task))
	<-steam.calls

	require.NoError(t, c.HandleConfirm(context.Background(), asynq.NewTask(asynqtask.TypeTradeConfirm, []byte("{"))))
}

func TestConfirmerInlineWithoutQueue(t *testing.T) {
	steam := &fakeOfferConfirmer{calls: make(chan string, 1)}
	c := NewTaskConfirmer(nil, steam)

	ctx, cancel := context.WithCancel(context.Background())
	c.Dispatch(ctx, "c1", "9001")
	cancel()

	select {
	case id := <-steam.calls:
		require.Equal(t, "9001", id)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was not attempted")
	}
}

func TestConfirmerEnqueueErrorIsSwallowed(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	c := NewTaskConfirmer(queue, &fakeOfferConfirmer{calls: make(chan string, 1)})
	require.NotPanics(t, func() { c.Dispatch(context.Background(), "c1", "9001") })
}
