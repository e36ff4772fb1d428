package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier as string. It is a
// package variable so tests can stub it.
var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// NewSecret returns an opaque token handed to spawned workers so they can
// authenticate callbacks against their owning group.
func NewSecret() string { return strings.ReplaceAll(NewFunc()+NewFunc(), "-", "") }
