package core

import (
	"context"
	"fmt"
	"strings"
)

// ValueResolver turns one template leaf or path param into a value for a
// record.
type ValueResolver struct {
	registry *HandlerRegistry
	marker   string
}

func NewValueResolver(registry *HandlerRegistry, marker string) *ValueResolver {
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = defaultTemplateMarker
	}
	return &ValueResolver{registry: registry, marker: marker}
}

func (r *ValueResolver) Marker() string {
	if r == nil {
		return defaultTemplateMarker
	}
	return r.marker
}

func (r *ValueResolver) Registry() *HandlerRegistry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Resolve returns a string for Literal, PropertyPath and Computed sources and
// whatever the handler produced for DynamicNode sources.
func (r *ValueResolver) Resolve(ctx context.Context, source ValueSource, record Record) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("core: value resolver is nil")
	}
	switch source.Kind {
	case ValueLiteral, "":
		return r.ResolveLiteral(source.Expression, record)
	case ValuePropertyPath:
		value, ok := LookupProperty(record, source.Expression)
		if !ok {
			return nil, propertyNotFoundError(strings.TrimSpace(source.Expression), record)
		}
		return Stringify(value), nil
	case ValueComputed:
		return r.resolveComputed(ctx, source, record)
	case ValueDynamicNode:
		return r.resolveDynamic(ctx, source, record)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidValueKind, source.Kind)
}

// ResolveString resolves source and renders the result as text.
func (r *ValueResolver) ResolveString(ctx context.Context, source ValueSource, record Record) (string, error) {
	value, err := r.Resolve(ctx, source, record)
	if err != nil {
		return "", err
	}
	return Stringify(value), nil
}

// ResolveLiteral substitutes every marker token with the referenced property.
// Text without a marker is returned untouched. Any unresolved token fails the
// whole literal.
func (r *ValueResolver) ResolveLiteral(text string, record Record) (string, error) {
	marker := r.Marker()
	if !strings.Contains(text, marker) {
		return text, nil
	}
	tokens := strings.Fields(text)
	for i, token := range tokens {
		path, ok := markerPath(token, marker)
		if !ok {
			continue
		}
		value, found := LookupProperty(record, path)
		if !found {
			return "", propertyNotFoundError(path, record)
		}
		tokens[i] = Stringify(value)
	}
	return strings.Join(tokens, " "), nil
}

// markerPath extracts the property path that follows the marker in token.
func markerPath(token string, marker string) (string, bool) {
	idx := strings.Index(token, marker)
	if idx < 0 {
		return "", false
	}
	path := token[idx+len(marker):]
	if path == "" {
		return "", false
	}
	return path, true
}

func (r *ValueResolver) resolveArguments(arguments []HandlerArgument, record Record) ([]string, error) {
	args := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if !argument.Active {
			continue
		}
		value, err := r.ResolveLiteral(argument.Value, record)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}
	return args, nil
}

func (r *ValueResolver) resolveComputed(ctx context.Context, source ValueSource, record Record) (any, error) {
	name := strings.TrimSpace(source.Expression)
	handler, err := ResolveHandler[ComputeHandler](r.registry, name, "ComputeHandler")
	if err != nil {
		return nil, err
	}
	args, err := r.resolveArguments(source.Arguments, record)
	if err != nil {
		return nil, err
	}
	return invokeHandler(name, func() (string, error) {
		return handler.Compute(ctx, args)
	})
}

func (r *ValueResolver) resolveDynamic(ctx context.Context, source ValueSource, record Record) (any, error) {
	name := strings.TrimSpace(source.Expression)
	handler, err := ResolveHandler[NodeHandler](r.registry, name, "NodeHandler")
	if err != nil {
		return nil, err
	}
	args, err := r.resolveArguments(source.DynamicArguments, record)
	if err != nil {
		return nil, err
	}
	return invokeHandler(name, func() (any, error) {
		return handler.BuildNode(ctx, args)
	})
}

func invokeHandler[T any](name string, call func() (T, error)) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T
			result = zero
			err = invocationError(name, fmt.Errorf("handler panic: %v", recovered))
		}
	}()
	result, err = call()
	if err != nil {
		var zero T
		return zero, invocationError(name, err)
	}
	return result, nil
}

// InvokeHandler runs call under the same guard used for resolver handlers:
// errors and panics come back as handler invocation failures.
func InvokeHandler(name string, call func() error) error {
	_, err := invokeHandler(name, func() (struct{}, error) {
		return struct{}{}, call()
	})
	return err
}
