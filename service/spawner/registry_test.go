package spawner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/apool/service/spawner/memory"
)

func TestRegistry(t *testing.T) {
	registry := spawner.NewRegistry()
	registry.Register("dummy", &memory.Spawner{})

	instance, err := registry.New("dummy")
	assert.Nil(t, err)
	proc, err := instance.Spawn(context.Background(), option.New("/apps/demo"))
	assert.Nil(t, err)
	assert.NotNil(t, proc)

	// each New returns an independent instance
	other, err := registry.New("dummy")
	assert.Nil(t, err)
	assert.Equal(t, 0, other.(*memory.Spawner).Spawned())
	assert.Equal(t, 1, instance.(*memory.Spawner).Spawned())

	_, err = registry.New("unknown")
	assert.NotNil(t, err)
}
