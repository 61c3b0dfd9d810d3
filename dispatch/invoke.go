package dispatch

import (
	"context"
	"reflect"

	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/params"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// invoke calls value.method with args.
//
// A leading context.Context parameter receives ctx. Missing arguments are
// zero values and surplus arguments are dropped. Results are unpacked as
// (), (T), (error) or (T, error); any other shape returns the non-error
// results as a []any.
func invoke(ctx context.Context, service string, value any, method string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, errors.InvocationFailed(method, r)
		}
	}()

	// A constructor returning a nil interface leaves nothing to call.
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return nil, errors.MethodNotFound(service, method)
	}
	m := v.MethodByName(method)
	if !m.IsValid() {
		return nil, errors.MethodNotFound(service, method)
	}

	in, err := callArgs(ctx, m.Type(), method, args)
	if err != nil {
		return nil, err
	}
	return unpack(m.Call(in))
}

func callArgs(ctx context.Context, mt reflect.Type, method string, args []any) ([]reflect.Value, error) {
	offset := 0
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		offset = 1
	}

	fixed := mt.NumIn() - offset
	if mt.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, mt.NumIn())
	if offset == 1 {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i := 0; i < fixed; i++ {
		var arg any
		if i < len(args) {
			arg = args[i]
		}
		v, err := params.Convert(arg, mt.In(offset+i))
		if err != nil {
			return nil, errors.ArgumentMismatch(method, i, err)
		}
		in = append(in, v)
	}

	if mt.IsVariadic() {
		elem := mt.In(mt.NumIn() - 1).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := params.Convert(args[i], elem)
			if err != nil {
				return nil, errors.ArgumentMismatch(method, i, err)
			}
			in = append(in, v)
		}
	}
	return in, nil
}

func unpack(out []reflect.Value) (any, error) {
	var err error
	values := out
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e, ok := out[n-1].Interface().(error); ok {
			err = e
		}
		values = out[:n-1]
	}

	switch len(values) {
	case 0:
		return nil, err
	case 1:
		return values[0].Interface(), err
	default:
		results := make([]any, len(values))
		for i, v := range values {
			results[i] = v.Interface()
		}
		return results, err
	}
}
