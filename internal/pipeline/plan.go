package pipeline

import (
	"context"
	"fmt"

	"github.com/mailwright/mailwright/internal/logging"
)

// Watch group names.
const (
	GroupTemplates = "templates"
	GroupStyles    = "styles"
	GroupImages    = "images"
)

// Stages are the concrete tasks a Plan is assembled from.
type Stages struct {
	Clean     Task
	Templates Task
	Styles    Task
	Images    Task
	Inline    Task
	// Reloader may be nil when nothing is listening, e.g. a one-shot build.
	Reloader Reloader
}

// Plan holds the initial build sequence and the sequence each watch group
// re-runs on change.
type Plan struct {
	Build       *Sequence
	OnTemplates *Sequence
	OnStyles    *Sequence
	OnImages    *Sequence
}

// NewPlan wires the stages into the fixed sequences:
//
//	build:        clean, templates, styles, images, inline
//	on-templates: templates, styles, inline, reload
//	on-styles:    clean, styles, templates, images, inline, reload
//	on-images:    images, reload
//
// A style change cleans first because inlined pages from the previous style
// pass cannot be refreshed in place.
func NewPlan(st Stages, logger logging.Logger) (*Plan, error) {
	for name, t := range map[StageName]Task{
		StageClean:     st.Clean,
		StageTemplates: st.Templates,
		StageStyles:    st.Styles,
		StageImages:    st.Images,
		StageInline:    st.Inline,
	} {
		if t == nil {
			return nil, &PlanError{Kind: ErrUnknownStage, Msg: fmt.Sprintf("no task for stage %s", name)}
		}
		if t.Name() != name {
			return nil, invalidf("task for stage %s reports name %s", name, t.Name())
		}
	}

	var reloader Reloader = nopReloader{}
	if st.Reloader != nil {
		reloader = st.Reloader
	}
	reload := ReloadTask(reloader)

	build, err := NewSequence("build", logger, st.Clean, st.Templates, st.Styles, st.Images, st.Inline)
	if err != nil {
		return nil, err
	}
	onTemplates, err := NewSequence("on-templates", logger, st.Templates, st.Styles, st.Inline, reload)
	if err != nil {
		return nil, err
	}
	onStyles, err := NewSequence("on-styles", logger, st.Clean, st.Styles, st.Templates, st.Images, st.Inline, reload)
	if err != nil {
		return nil, err
	}
	onImages, err := NewSequence("on-images", logger, st.Images, reload)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Build:       build,
		OnTemplates: onTemplates,
		OnStyles:    onStyles,
		OnImages:    onImages,
	}, nil
}

// ForGroup returns the sequence bound to a watch group.
func (p *Plan) ForGroup(group string) (*Sequence, error) {
	switch group {
	case GroupTemplates:
		return p.OnTemplates, nil
	case GroupStyles:
		return p.OnStyles, nil
	case GroupImages:
		return p.OnImages, nil
	default:
		return nil, &PlanError{Kind: ErrUnknownStage, Msg: "no sequence for watch group " + group}
	}
}

type nopReloader struct{}

func (nopReloader) Reload(context.Context) {}
