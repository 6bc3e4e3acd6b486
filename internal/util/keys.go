package util

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// DefaultKeyPrefix returns "<process name>.<implementation type>." so that
// services sharing a distributed cache do not collide on equal templates.
func DefaultKeyPrefix(impl reflect.Type) string {
	return ProcessName() + "." + TypeName(impl) + "."
}

// ProcessName is the executable's base name without extension.
func ProcessName() string {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return "process"
	}
	base := filepath.Base(os.Args[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TypeName renders t without pointer markers, e.g. "userservice.service".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "unknown"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
