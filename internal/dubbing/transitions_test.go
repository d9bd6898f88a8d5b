package dubbing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		from, to models.DubJobState
		want     decision
		wantErr  error
	}{
		{models.DubJobQueued, models.DubJobSubmitted, decisionApply, nil},
		{models.DubJobQueued, models.DubJobFailed, decisionApply, nil},
		{models.DubJobSubmitted, models.DubJobProcessing, decisionApply, nil},
		{models.DubJobSubmitted, models.DubJobReady, decisionApply, nil},
		{models.DubJobProcessing, models.DubJobReady, decisionApply, nil},
		{models.DubJobProcessing, models.DubJobFailed, decisionApply, nil},
		{models.DubJobProcessing, models.DubJobProcessing, decisionNoop, nil},
		{models.DubJobReady, models.DubJobReady, decisionNoop, nil},
		{models.DubJobFailed, models.DubJobFailed, decisionNoop, nil},
		{models.DubJobReady, models.DubJobFailed, decisionNoop, ErrTerminalState},
		{models.DubJobFailed, models.DubJobQueued, decisionNoop, ErrTerminalState},
		{models.DubJobProcessing, models.DubJobSubmitted, decisionNoop, ErrInvalidTransition},
		{models.DubJobQueued, models.DubJobReady, decisionNoop, ErrInvalidTransition},
		{models.DubJobQueued, models.DubJobProcessing, decisionNoop, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := decide(tt.from, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(models.DubJobSubmitted, models.DubJobReady))
	assert.False(t, Allowed(models.DubJobReady, models.DubJobReady))
	assert.False(t, Allowed(models.DubJobReady, models.DubJobProcessing))
}

func TestTransitionsNeverLeaveTerminal(t *testing.T) {
	for _, tr := range transitionsTable {
		assert.False(t, tr.From.IsTerminal(), "%s -> %s leaves a terminal state", tr.From, tr.To)
		assert.NotEqual(t, tr.From, tr.To)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("job")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}
