package processor

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryLock      sync.Mutex
	registeredPlugins = map[string]Processor{}
)

// RegisterProcessor registers the given annotation processor under the given
// name. It is typically called from an init function. It panics if a
// processor with the same name is already registered.
func RegisterProcessor(name string, p Processor) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if _, ok := registeredPlugins[name]; ok {
		panic(fmt.Sprintf("processor %q registered more than once", name))
	}
	registeredPlugins[name] = p
}

// LookupProcessor returns the registered processor with the given name, or nil.
func LookupProcessor(name string) Processor {
	registryLock.Lock()
	defer registryLock.Unlock()
	return registeredPlugins[name]
}

// RegisteredProcessorNames returns the names of all registered processors,
// sorted.
func RegisteredProcessorNames() []string {
	registryLock.Lock()
	defer registryLock.Unlock()
	names := make([]string, 0, len(registeredPlugins))
	for n := range registeredPlugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllRegisteredProcessors returns the list of all registered processors, in
// the order of their names.
func AllRegisteredProcessors() []Processor {
	names := RegisteredProcessorNames()
	registryLock.Lock()
	defer registryLock.Unlock()
	procs := make([]Processor, len(names))
	for i, n := range names {
		procs[i] = registeredPlugins[n]
	}
	return procs
}
