package pipeline

import (
	"context"
	"fmt"

	"github.com/mailwright/mailwright/internal/logging"
)

// Sequence is an ordered list of stages run one after another.
type Sequence struct {
	Name   string
	Tasks  []Task
	logger logging.Logger
}

// NewSequence builds a sequence and checks its ordering constraints.
func NewSequence(name string, logger logging.Logger, tasks ...Task) (*Sequence, error) {
	if name == "" {
		return nil, invalidf("sequence without a name")
	}
	names := make([]StageName, 0, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, invalidf("%s: nil task at position %d", name, i)
		}
		names = append(names, t.Name())
	}
	if err := validateOrder(name, names); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sequence{
		Name:   name,
		Tasks:  tasks,
		logger: logger.WithComponent("pipeline").With("sequence", name),
	}, nil
}

// Stages lists the stage names in execution order.
func (s *Sequence) Stages() []StageName {
	names := make([]StageName, len(s.Tasks))
	for i, t := range s.Tasks {
		names[i] = t.Name()
	}
	return names
}

// Run executes every task in order and stops at the first failure, which
// is returned as a *StageError.
func (s *Sequence) Run(ctx context.Context) error {
	for _, task := range s.Tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		op := logging.StartOperation(s.logger.With("stage", string(task.Name())), string(task.Name()))
		if err := task.Run(ctx); err != nil {
			op.EndWithError(ctx, err)
			return &StageError{Sequence: s.Name, Stage: task.Name(), Err: err}
		}
		op.End(ctx)
	}
	return nil
}

// String renders the sequence as "name: a -> b -> c".
func (s *Sequence) String() string {
	out := s.Name + ":"
	for i, st := range s.Stages() {
		if i > 0 {
			out += " ->"
		}
		out += fmt.Sprintf(" %s", st)
	}
	return out
}

// validateOrder enforces the data dependencies between stages sharing one
// sequence: clean only first, reload only last, each stage at most once,
// and inline after any templates or styles stage it shares a sequence with.
func validateOrder(seq string, names []StageName) error {
	pos := make(map[StageName]int, len(names))
	for i, n := range names {
		if _, dup := pos[n]; dup {
			return invalidf("%s: stage %s appears twice", seq, n)
		}
		pos[n] = i
	}

	if i, ok := pos[StageClean]; ok && i != 0 {
		return invalidf("%s: clean must run first", seq)
	}
	if i, ok := pos[StageReload]; ok && i != len(names)-1 {
		return invalidf("%s: reload must run last", seq)
	}
	if in, ok := pos[StageInline]; ok {
		for _, producer := range []StageName{StageTemplates, StageStyles} {
			if p, ok := pos[producer]; ok && p > in {
				return invalidf("%s: inline must run after %s", seq, producer)
			}
		}
	}
	return nil
}
