package option

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Init(t *testing.T) {
	opts := New("/apps/demo")
	assert.Equal(t, "/apps/demo", opts.AppGroupName)
	assert.Equal(t, 1, opts.Concurrency)
	assert.Equal(t, 1, opts.MinProcesses)
	assert.Equal(t, time.Second, opts.StatThrottle)
	assert.Equal(t, "/apps/demo/tmp/restart.txt", opts.RestartFile())
	assert.Equal(t, "/apps/demo/tmp/always_restart.txt", opts.AlwaysRestartFile())
}

func TestOptions_Merge(t *testing.T) {
	stored := New("/apps/demo")
	stored.StartCommand = "ruby app.rb"
	stored.MaxProcesses = 6

	incoming := New("/apps/other")
	incoming.StartCommand = "python app.py"
	incoming.MaxRequests = 100
	incoming.MinProcesses = 3
	incoming.StatThrottle = 5 * time.Second
	incoming.SpawnerTimeout = time.Minute
	incoming.MemoryLimit = 256
	incoming.Analytics = true
	incoming.UnionStationKey = "key-1"
	incoming.MaxProcesses = 99

	stored.Merge(incoming)

	// mutable subset copied
	assert.Equal(t, 100, stored.MaxRequests)
	assert.Equal(t, 3, stored.MinProcesses)
	assert.Equal(t, 5*time.Second, stored.StatThrottle)
	assert.Equal(t, time.Minute, stored.SpawnerTimeout)
	assert.Equal(t, 256, stored.MemoryLimit)
	assert.True(t, stored.Analytics)
	assert.Equal(t, "key-1", stored.UnionStationKey)

	// everything else untouched
	assert.Equal(t, "/apps/demo", stored.AppRoot)
	assert.Equal(t, "ruby app.rb", stored.StartCommand)
	assert.Equal(t, 6, stored.MaxProcesses)
}

func TestOptions_Persist(t *testing.T) {
	opts := New("/apps/demo")
	opts.Environment = map[string]string{"RACK_ENV": "production"}
	snapshot := opts.Persist()
	opts.Environment["RACK_ENV"] = "development"
	opts.MemoryLimit = 512
	assert.Equal(t, "production", snapshot.Environment["RACK_ENV"])
	assert.Equal(t, 0, snapshot.MemoryLimit)
}

func TestOptions_ClearPerRequestFields(t *testing.T) {
	opts := New("/apps/demo")
	opts.Noop = true
	opts.ClearPerRequestFields()
	assert.False(t, opts.Noop)
}

func TestOptions_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		options     *Options
		valid       bool
	}{
		{
			description: "valid defaults",
			options:     New("/apps/demo"),
			valid:       true,
		},
		{
			description: "no identity",
			options:     &Options{},
			valid:       false,
		},
		{
			description: "external group secret rejected",
			options:     &Options{AppRoot: "/apps/demo", GroupSecret: "injected"},
			valid:       false,
		},
		{
			description: "negative bounds",
			options:     &Options{AppRoot: "/apps/demo", MinProcesses: -1},
			valid:       false,
		},
	}
	for _, testCase := range testCases {
		err := testCase.options.Validate()
		if testCase.valid {
			assert.Nil(t, err, testCase.description)
		} else {
			assert.NotNil(t, err, testCase.description)
		}
	}
}
