package cache

import (
	"reflect"
	"time"
)

// Declarer is implemented by service implementations that declare their own
// cache policies. The aspect discovers it on the implementation type while
// configuring, without needing a live instance:
//
//	func (*userService) CachePolicies() []cache.Marker {
//		return []cache.Marker{
//			cache.Cacheable("GetUser", "user-{id}"),
//			cache.CacheRemove("UpdateUser", "user-{user.Id}"),
//		}
//	}
//
// CachePolicies is called on a zero value, so it must not read receiver state.
type Declarer interface {
	CachePolicies() []Marker
}

// Marker is one declarative cache policy for a method.
type Marker struct {
	Method   string
	Action   Action
	Key      string
	TTL      time.Duration // 0 => setup default
	Provider Provider      // 0 => setup default
}

// Cacheable declares a Set policy.
func Cacheable(method, key string) Marker {
	return Marker{Method: method, Action: Set, Key: key}
}

// CacheRemove declares a Remove policy.
func CacheRemove(method, key string) Marker {
	return Marker{Method: method, Action: Remove, Key: key}
}

func (m Marker) WithTTL(d time.Duration) Marker {
	m.TTL = d
	return m
}

func (m Marker) Using(p Provider) Marker {
	m.Provider = p
	return m
}

var declarerType = reflect.TypeFor[Declarer]()

// declaredMarkers returns the markers of impl, or nil when it declares none.
func declaredMarkers(impl reflect.Type) []Marker {
	if impl == nil {
		return nil
	}
	var v reflect.Value
	if impl.Kind() == reflect.Pointer {
		v = reflect.New(impl.Elem())
	} else {
		v = reflect.New(impl)
	}
	if !v.Type().Implements(declarerType) {
		return nil
	}
	return v.Interface().(Declarer).CachePolicies()
}
