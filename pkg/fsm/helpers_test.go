package fsm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testObserver captures every observer callback
type testObserver struct {
	mutex       sync.Mutex
	Transitions []transitionEvent
	Enters      []string
	Exits       []string
	Rejects     []string
	Errors      []error
}

type transitionEvent struct {
	From  string
	To    string
	Event string
}

func (o *testObserver) OnTransition(from, to string, event Event) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, transitionEvent{From: from, To: to, Event: event.Name})
}

func (o *testObserver) OnStateEnter(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Enters = append(o.Enters, state)
}

func (o *testObserver) OnStateExit(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Exits = append(o.Exits, state)
}

func (o *testObserver) OnEventRejected(event Event, reason string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Rejects = append(o.Rejects, event.Name)
}

func (o *testObserver) OnError(err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, err)
}

// createDoorMachine builds closed <-> open with a lock guard
func createDoorMachine(t *testing.T, locked *bool) *Machine {
	t.Helper()

	isLocked := func(*Context) bool { return *locked }

	def, err := NewBuilder().
		State("closed").Initial().
		To("open").On("push").Unless(isLocked).
		ToSelf().On("push").
		State("open").
		To("closed").On("pull").
		Build()
	require.NoError(t, err)

	return def.NewMachine()
}
