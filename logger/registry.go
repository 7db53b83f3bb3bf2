package logger

import "sync"

// Component loggers. Registered ones are pinned until Reset; derived ones
// are built from the global logger on first use and dropped by Init so
// they pick up the new configuration.
var components struct {
	sync.Mutex
	pinned  map[string]*Logger
	derived map[string]*Logger
}

// Register pins l as the logger returned by Get(name).
func Register(name string, l *Logger) {
	components.Lock()
	defer components.Unlock()
	if components.pinned == nil {
		components.pinned = make(map[string]*Logger)
	}
	components.pinned[name] = l
}

// Get returns the logger for a component: the pinned one if any, else the
// global logger tagged with component=name.
func Get(name string) *Logger {
	components.Lock()
	defer components.Unlock()
	if l, ok := components.pinned[name]; ok {
		return l
	}
	if l, ok := components.derived[name]; ok {
		return l
	}
	if components.derived == nil {
		components.derived = make(map[string]*Logger)
	}
	l := GetGlobalLogger().WithComponent(name)
	components.derived[name] = l
	return l
}

// Reset drops every component logger.
func Reset() {
	components.Lock()
	defer components.Unlock()
	components.pinned = nil
	components.derived = nil
}

func dropDerived() {
	components.Lock()
	components.derived = nil
	components.Unlock()
}
