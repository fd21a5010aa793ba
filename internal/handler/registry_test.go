package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func noop(ctx context.Context, tx *gorm.DB, evt Event) error { return nil }

func TestRegister_DuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	d := NewDescriptor("AuditHandler", []string{"action.created"}, noop)
	require.NoError(t, r.Register(d))
	err := r.Register(d)
	require.Error(t, err)
}

func TestMustRegister_PanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	d := NewDescriptor("AuditHandler", []string{"action.created"}, noop)
	r.MustRegister(d)
	assert.Panics(t, func() { r.MustRegister(d) })
}

func TestHandlersFor_OrderedAndFiltered(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewDescriptor("First", []string{"action.created"}, noop))
	r.MustRegister(NewDescriptor("Second", []string{"action.created", "action.completed"}, noop))
	r.MustRegister(NewDescriptor("Third", []string{"policy.created"}, noop))

	matched := r.HandlersFor("action.created")
	require.Len(t, matched, 2)
	assert.Equal(t, "First", matched[0].Name)
	assert.Equal(t, "Second", matched[1].Name)

	assert.Empty(t, r.HandlersFor("unknown.event"))
}
