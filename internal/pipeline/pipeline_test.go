package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects stage names in execution order.
type recorder struct {
	mu    sync.Mutex
	calls []StageName
}

func (r *recorder) task(name StageName, err error) Task {
	return NewTask(name, func(ctx context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return err
	})
}

func (r *recorder) Calls() []StageName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageName(nil), r.calls...)
}

type countingReloader struct {
	mu    sync.Mutex
	count int
}

func (c *countingReloader) Reload(context.Context) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingReloader) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func testStages(r *recorder, reloader Reloader) Stages {
	return Stages{
		Clean:     r.task(StageClean, nil),
		Templates: r.task(StageTemplates, nil),
		Styles:    r.task(StageStyles, nil),
		Images:    r.task(StageImages, nil),
		Inline:    r.task(StageInline, nil),
		Reloader:  reloader,
	}
}

func TestSequenceRunsInOrder(t *testing.T) {
	r := &recorder{}
	seq, err := NewSequence("test", nil, r.task(StageTemplates, nil), r.task(StageStyles, nil), r.task(StageInline, nil))
	require.NoError(t, err)

	require.NoError(t, seq.Run(context.Background()))
	assert.Equal(t, []StageName{StageTemplates, StageStyles, StageInline}, r.Calls())
	assert.Equal(t, "test: templates -> styles -> inline", seq.String())
}

func TestSequenceHaltsOnFailure(t *testing.T) {
	r := &recorder{}
	boom := errors.New("sass exploded")
	seq, err := NewSequence("build", nil,
		r.task(StageClean, nil),
		r.task(StageStyles, boom),
		r.task(StageInline, nil),
	)
	require.NoError(t, err)

	err = seq.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStyles, stageErr.Stage)
	assert.Equal(t, "build", stageErr.Sequence)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []StageName{StageClean, StageStyles}, r.Calls())
}

func TestSequenceStopsOnCancelledContext(t *testing.T) {
	r := &recorder{}
	seq, err := NewSequence("build", nil, r.task(StageTemplates, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, seq.Run(ctx), context.Canceled)
	assert.Empty(t, r.Calls())
}

func TestValidateOrder(t *testing.T) {
	testCases := []struct {
		name    string
		stages  []StageName
		wantErr bool
	}{
		{"full build", []StageName{StageClean, StageTemplates, StageStyles, StageImages, StageInline}, false},
		{"images only", []StageName{StageImages, StageReload}, false},
		{"clean not first", []StageName{StageTemplates, StageClean}, true},
		{"reload not last", []StageName{StageReload, StageImages}, true},
		{"duplicate", []StageName{StageImages, StageImages}, true},
		{"inline before templates", []StageName{StageInline, StageTemplates}, true},
		{"inline before styles", []StageName{StageTemplates, StageInline, StageStyles}, true},
		{"inline alone", []StageName{StageInline}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateOrder("seq", tc.stages)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlan)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSequenceRejectsNilTask(t *testing.T) {
	_, err := NewSequence("seq", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewSequence("", nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestPlanSequences(t *testing.T) {
	r := &recorder{}
	plan, err := NewPlan(testStages(r, nil), nil)
	require.NoError(t, err)

	assert.Equal(t,
		[]StageName{StageClean, StageTemplates, StageStyles, StageImages, StageInline},
		plan.Build.Stages())
	assert.Equal(t,
		[]StageName{StageTemplates, StageStyles, StageInline, StageReload},
		plan.OnTemplates.Stages())
	assert.Equal(t,
		[]StageName{StageClean, StageStyles, StageTemplates, StageImages, StageInline, StageReload},
		plan.OnStyles.Stages())
	assert.Equal(t,
		[]StageName{StageImages, StageReload},
		plan.OnImages.Stages())
}

func TestPlanForGroup(t *testing.T) {
	plan, err := NewPlan(testStages(&recorder{}, nil), nil)
	require.NoError(t, err)

	seq, err := plan.ForGroup(GroupImages)
	require.NoError(t, err)
	assert.Same(t, plan.OnImages, seq)

	_, err = plan.ForGroup("fonts")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestPlanRejectsMissingOrMislabelledStage(t *testing.T) {
	r := &recorder{}
	st := testStages(r, nil)
	st.Images = nil
	_, err := NewPlan(st, nil)
	assert.ErrorIs(t, err, ErrUnknownStage)

	st = testStages(r, nil)
	st.Images = r.task(StageStyles, nil)
	_, err = NewPlan(st, nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestImageChangeSkipsTemplatesAndStyles(t *testing.T) {
	r := &recorder{}
	reloader := &countingReloader{}
	plan, err := NewPlan(testStages(r, reloader), nil)
	require.NoError(t, err)

	require.NoError(t, plan.OnImages.Run(context.Background()))

	assert.Equal(t, []StageName{StageImages}, r.Calls())
	assert.Equal(t, 1, reloader.Count())
}

func TestReloadOnlyAfterSuccess(t *testing.T) {
	r := &recorder{}
	reloader := &countingReloader{}
	st := testStages(r, reloader)
	st.Templates = r.task(StageTemplates, errors.New("bad partial"))
	plan, err := NewPlan(st, nil)
	require.NoError(t, err)

	assert.Error(t, plan.OnTemplates.Run(context.Background()))
	assert.Equal(t, 0, reloader.Count())
}

func TestParallel(t *testing.T) {
	boom := errors.New("listen failed")
	stopped := make(chan struct{})

	err := Parallel(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		},
		func(ctx context.Context) error {
			return boom
		},
	)

	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling was not cancelled")
	}
}

func TestParallelAllSucceed(t *testing.T) {
	var mu sync.Mutex
	count := 0
	fn := func(ctx context.Context) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	require.NoError(t, Parallel(context.Background(), fn, fn, fn))
	assert.Equal(t, 3, count)
}
