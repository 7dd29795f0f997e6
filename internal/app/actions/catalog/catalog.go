// Package catalog assembles the registry of every built-in action.
package catalog

import (
	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/actions/agenda"
	"github.com/plenumhq/plenum/internal/app/actions/committee"
	"github.com/plenumhq/plenum/internal/app/actions/group"
	"github.com/plenumhq/plenum/internal/app/actions/meeting"
	"github.com/plenumhq/plenum/internal/app/actions/motion"
	"github.com/plenumhq/plenum/internal/app/actions/speaker"
	"github.com/plenumhq/plenum/internal/app/actions/topic"
	"github.com/plenumhq/plenum/internal/app/actions/user"
)

// New builds the action registry. Registration happens here, at init,
// never by import side effects.
func New() (*actions.Registry, error) {
	var all []*actions.Action
	all = append(all, committee.Actions()...)
	all = append(all, meeting.Actions()...)
	all = append(all, group.Actions()...)
	all = append(all, user.Actions()...)
	all = append(all, topic.Actions()...)
	all = append(all, motion.Actions()...)
	all = append(all, agenda.Actions()...)
	all = append(all, speaker.Actions()...)
	return actions.NewRegistry(all...)
}

// MustNew is New for wiring code that treats a broken table as fatal.
func MustNew() *actions.Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}
