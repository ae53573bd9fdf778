package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeardown_ReleasesNewestFirst(t *testing.T) {
	var released []string
	var undo teardown
	undo.add(func() { released = append(released, "tracer") })
	undo.add(func() { released = append(released, "postgres") })
	undo.add(func() { released = append(released, "redis") })
	undo.add(func() { released = append(released, "kafka") })

	boom := errors.New("identity error patterns: bad regexp")
	app, err := undo.fail(boom)

	assert.Nil(t, app)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"kafka", "redis", "postgres", "tracer"}, released)
}

func TestTeardown_Empty(t *testing.T) {
	var undo teardown
	_, err := undo.fail(errors.New("init tracer"))
	assert.EqualError(t, err, "init tracer")
}
