package spawner

import (
	"fmt"
	"reflect"

	"github.com/viant/x"
)

// Registry maps application types to spawner prototypes so groups can be
// created from options alone. Prototypes must be usable from their zero
// value.
type Registry struct {
	x.Registry
}

// Register adds a spawner prototype under appType.
func (r *Registry) Register(appType string, prototype Spawner) {
	rType := reflect.TypeOf(prototype)
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	r.Registry.Register(x.NewType(rType, x.WithName(appType)))
}

// New instantiates a spawner for appType.
func (r *Registry) New(appType string) (Spawner, error) {
	xType := r.Registry.Lookup(appType)
	if xType == nil {
		return nil, fmt.Errorf("unknown application type: %v", appType)
	}
	value := reflect.New(xType.Type).Interface()
	ret, ok := value.(Spawner)
	if !ok {
		return nil, fmt.Errorf("registered type for %v is not a spawner: %T", appType, value)
	}
	return ret, nil
}

// NewRegistry creates an empty spawner registry.
func NewRegistry() *Registry {
	return &Registry{Registry: *x.NewRegistry()}
}
