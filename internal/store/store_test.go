package store

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	appLog "usercal/internal/log"
	"usercal/internal/model"
	"usercal/internal/recorder"
	"usercal/internal/userevents"
)

func TestDispatch_FoldsAllSlices(t *testing.T) {
	s := New(InitialRoot())

	s.Dispatch(userevents.LoadRequested{})
	if !s.Snapshot().Status.Loading() {
		t.Fatalf("expected loading status")
	}

	s.Dispatch(userevents.LoadSucceeded{Events: []model.Event{{ID: 1, Title: "A"}}})
	s.Dispatch(recorder.Start{At: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})

	root := s.Snapshot()
	if root.Status.Loading() {
		t.Fatalf("load should be finished")
	}
	if got := userevents.ProjectEvents(root.Events); len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("events = %+v", got)
	}
	if got := SelectDateStart(root); got != "2020-01-01T00:00:00.000Z" {
		t.Fatalf("SelectDateStart = %q", got)
	}
}

func TestDispatch_UnknownActionKeepsState(t *testing.T) {
	s := New(InitialRoot())
	s.Dispatch(userevents.CreateSucceeded{Event: model.Event{ID: 1}})
	before := s.Snapshot()

	s.Dispatch("not an action")

	after := s.Snapshot()
	if userevents.Len(after.Events) != 1 || after.Status != before.Status || after.Recorder != before.Recorder {
		t.Fatalf("state changed: %+v", after)
	}
}

func TestSubscribe(t *testing.T) {
	s := New(InitialRoot())

	var calls int
	var last Root
	unsubscribe := s.Subscribe(func(r Root) {
		calls++
		last = r
	})

	s.Dispatch(userevents.CreateSucceeded{Event: model.Event{ID: 4}})
	if calls != 1 || userevents.Len(last.Events) != 1 {
		t.Fatalf("calls=%d last=%+v", calls, last)
	}

	unsubscribe()
	s.Dispatch(userevents.DeleteSucceeded{ID: 4})
	if calls != 1 {
		t.Fatalf("subscriber called after unsubscribe")
	}
}

func TestDispatch_ConcurrentEmitsKeepInvariants(t *testing.T) {
	s := New(InitialRoot())
	emit := s.Emit()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			emit(userevents.CreateRequested{})
			emit(userevents.CreateSucceeded{Event: model.Event{ID: id}})
			if id%2 == 0 {
				emit(userevents.DeleteSucceeded{ID: id})
			}
		}(i)
	}
	wg.Wait()

	root := s.Snapshot()
	if err := userevents.CheckInvariants(root.Events); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	if got := userevents.Len(root.Events); got != 25 {
		t.Fatalf("len = %d, want 25", got)
	}
	if root.Status.Create.Pending != 0 {
		t.Fatalf("pending = %d, want 0", root.Status.Create.Pending)
	}
}

func TestDispatch_SubscribersSeeStatesInOrder(t *testing.T) {
	s := New(InitialRoot())

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu      sync.Mutex
		lastLen int
		blocked bool
	)
	s.Subscribe(func(r Root) {
		n := userevents.Len(r.Events)
		mu.Lock()
		first := n == 1 && !blocked
		if first {
			blocked = true
		}
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		mu.Lock()
		lastLen = n
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Dispatch(userevents.LoadSucceeded{Events: []model.Event{{ID: 1}}})
	}()
	<-entered
	go func() {
		defer wg.Done()
		s.Dispatch(userevents.CreateSucceeded{Event: model.Event{ID: 2}})
	}()
	// Give the second dispatch a chance to overtake if ordering were broken.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := userevents.Len(s.Snapshot().Events); got != 2 {
		t.Fatalf("snapshot len = %d, want 2", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if lastLen != 2 {
		t.Fatalf("subscriber ended on len %d, want 2", lastLen)
	}
}

func TestDispatch_LogsInvariantViolation(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })

	broken := InitialRoot()
	broken.Events = userevents.State{ByID: map[int]model.Event{}, Order: []int{3}}
	New(broken).Dispatch(userevents.LoadRequested{})

	if !strings.Contains(buf.String(), "[ERROR] event store invariant violated") {
		t.Fatalf("violation not logged at error level: %q", buf.String())
	}
}
