// Package layering merges a strong value over a weaker fallback and deep-copies
// plain data values. It backs option defaulting and snapshot isolation.
package layering

import "reflect"

// Fill returns a new value holding every explicit setting from strong, with
// zero-valued fields taken from weak. Neither argument is mutated.
//
// Interface and func values are carried by reference: a cache or link placed in
// strong comes out as the very same instance.
func Fill[T any](strong, weak T) T {
	var zero T
	merged := fillValue(reflect.ValueOf(&strong).Elem(), reflect.ValueOf(&weak).Elem())
	if !merged.IsValid() {
		return zero
	}
	out := reflect.New(reflect.TypeOf(&zero).Elem()).Elem()
	out.Set(merged)
	result, _ := out.Interface().(T)
	return result
}

// Clone deep-copies maps, slices, pointers and structs reachable from value.
// Interface values holding maps or slices are copied as well, so a snapshot
// shaped like map[string]any is fully detached from its origin.
func Clone[T any](value T) T {
	cloned := cloneValue(reflect.ValueOf(&value).Elem())
	if !cloned.IsValid() {
		var zero T
		return zero
	}
	result, _ := cloned.Interface().(T)
	return result
}

func fillValue(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return cloneValue(weak)
	}
	if !weak.IsValid() || weak.Type() != strong.Type() {
		return cloneValue(strong)
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		return cloneValue(strong)
	case reflect.Interface, reflect.Func, reflect.Chan:
		if strong.IsNil() {
			return weak
		}
		return strong
	case reflect.Struct:
		out := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(fillValue(strong.Field(i), weak.Field(i)))
		}
		return out
	case reflect.Map:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		out := reflect.MakeMapWithSize(strong.Type(), strong.Len()+weak.Len())
		if !weak.IsNil() {
			iter := weak.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		return cloneValue(strong)
	default:
		if strong.IsZero() {
			return cloneValue(weak)
		}
		return cloneValue(strong)
	}
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(cloneValue(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := v.Elem()
		switch elem.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			out := reflect.New(v.Type()).Elem()
			out.Set(cloneValue(elem))
			return out
		default:
			return v
		}
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
