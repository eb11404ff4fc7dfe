package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// EntitySchema lists the property paths that exist on a table. Nested paths
// use dots ("customer.name"); a field ending in ".*" accepts any nested path
// below it, which is how document columns are described. A permissive schema
// accepts every path and is used when no SchemaProvider is configured.
type EntitySchema struct {
	Table      string
	Fields     []string
	Permissive bool
}

func (s EntitySchema) HasPath(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	if s.Permissive {
		return true
	}
	for _, field := range s.Fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if base, ok := strings.CutSuffix(field, ".*"); ok {
			if path == base || strings.HasPrefix(path, base+".") {
				return true
			}
			continue
		}
		if field == path || strings.HasPrefix(field, path+".") {
			return true
		}
	}
	return false
}

type TemplateIssue struct {
	Field   string
	Message string
}

// TemplateCompiler checks template nodes and path params before they are
// saved. It is a static check: paths that only exist at runtime are not
// modeled.
type TemplateCompiler struct {
	registry *HandlerRegistry
	marker   string
}

func NewTemplateCompiler(registry *HandlerRegistry, marker string) *TemplateCompiler {
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = defaultTemplateMarker
	}
	return &TemplateCompiler{registry: registry, marker: marker}
}

func (c *TemplateCompiler) ValidateNode(_ context.Context, node TemplateNode, schema EntitySchema) error {
	if c == nil {
		return fmt.Errorf("core: template compiler is required")
	}
	issues := c.nodeIssues(node, schema, nodeLabel(node))
	return issuesToError(issues)
}

// ValidateTree checks every node of a nested tree and reports all issues at
// once.
func (c *TemplateCompiler) ValidateTree(_ context.Context, nodes []TemplateNode, schema EntitySchema) error {
	if c == nil {
		return fmt.Errorf("core: template compiler is required")
	}
	var issues []TemplateIssue
	var walk func(nodes []TemplateNode, prefix string)
	walk = func(nodes []TemplateNode, prefix string) {
		for i, node := range nodes {
			label := nodeLabel(node)
			if label == "" {
				label = fmt.Sprintf("[%d]", i)
			}
			if prefix != "" {
				label = prefix + "." + label
			}
			issues = append(issues, c.nodeIssues(node, schema, label)...)
			walk(node.Children, label)
		}
	}
	walk(nodes, "")
	return issuesToError(issues)
}

func (c *TemplateCompiler) ValidateParam(_ context.Context, param PathParam, schema EntitySchema) error {
	if c == nil {
		return fmt.Errorf("core: template compiler is required")
	}
	label := strings.TrimSpace(param.Name)
	var issues []TemplateIssue
	if label == "" {
		issues = append(issues, TemplateIssue{Field: "name", Message: "path param name is required"})
		label = "param"
	}
	if !param.Placement.Valid() {
		issues = append(issues, TemplateIssue{
			Field:   label,
			Message: fmt.Sprintf("unsupported placement %q", param.Placement),
		})
	}
	if param.Kind == ValueDynamicNode {
		issues = append(issues, TemplateIssue{Field: label, Message: "path params cannot use dynamic nodes"})
	} else {
		issues = append(issues, c.sourceIssues(param.ValueSource, schema, label)...)
	}
	return issuesToError(issues)
}

func (c *TemplateCompiler) nodeIssues(node TemplateNode, schema EntitySchema, label string) []TemplateIssue {
	if label == "" {
		label = "node"
	}
	var issues []TemplateIssue
	if node.IsGroup {
		if strings.TrimSpace(node.Expression) != "" {
			issues = append(issues, TemplateIssue{Field: label, Message: "group nodes cannot carry a value expression"})
		}
		return issues
	}
	if node.IsArray {
		issues = append(issues, TemplateIssue{Field: label, Message: "only group nodes can be arrays"})
	}
	if len(node.Children) > 0 {
		issues = append(issues, TemplateIssue{Field: label, Message: "leaf nodes cannot have children"})
	}
	return append(issues, c.sourceIssues(node.ValueSource, schema, label)...)
}

func (c *TemplateCompiler) sourceIssues(source ValueSource, schema EntitySchema, label string) []TemplateIssue {
	var issues []TemplateIssue
	switch source.Kind {
	case ValueLiteral, "":
		issues = append(issues, c.literalIssues(source.Expression, schema, label)...)
	case ValuePropertyPath:
		path := strings.TrimSpace(source.Expression)
		if !schema.HasPath(path) {
			issues = append(issues, TemplateIssue{
				Field:   label,
				Message: fmt.Sprintf("property %q not found on %s", path, schema.Table),
			})
		}
	case ValueComputed:
		issues = append(issues, c.handlerIssues(source.Expression, label, func(instance any) bool {
			_, ok := instance.(ComputeHandler)
			return ok
		}, "ComputeHandler")...)
		issues = append(issues, c.argumentIssues(source.Arguments, schema, label)...)
	case ValueDynamicNode:
		issues = append(issues, c.handlerIssues(source.Expression, label, func(instance any) bool {
			_, ok := instance.(NodeHandler)
			return ok
		}, "NodeHandler")...)
		issues = append(issues, c.argumentIssues(source.DynamicArguments, schema, label)...)
	default:
		issues = append(issues, TemplateIssue{Field: label, Message: fmt.Sprintf("unsupported value kind %q", source.Kind)})
	}
	return issues
}

func (c *TemplateCompiler) literalIssues(text string, schema EntitySchema, label string) []TemplateIssue {
	var issues []TemplateIssue
	for _, token := range strings.Fields(text) {
		path, ok := markerPath(token, c.marker)
		if !ok {
			continue
		}
		if !schema.HasPath(path) {
			issues = append(issues, TemplateIssue{
				Field:   label,
				Message: fmt.Sprintf("property %q not found on %s", path, schema.Table),
			})
		}
	}
	return issues
}

func (c *TemplateCompiler) argumentIssues(arguments []HandlerArgument, schema EntitySchema, label string) []TemplateIssue {
	var issues []TemplateIssue
	for i, argument := range arguments {
		if !argument.Active {
			continue
		}
		issues = append(issues, c.literalIssues(argument.Value, schema, fmt.Sprintf("%s.args[%d]", label, i))...)
	}
	return issues
}

func (c *TemplateCompiler) handlerIssues(name string, label string, implements func(any) bool, contract string) []TemplateIssue {
	name = strings.TrimSpace(name)
	if name == "" {
		return []TemplateIssue{{Field: label, Message: "handler name is required"}}
	}
	if !c.registry.Has(name) {
		return []TemplateIssue{{Field: label, Message: fmt.Sprintf("handler %q is not registered", name)}}
	}
	instance, err := c.registry.Instantiate(name)
	if err != nil {
		return []TemplateIssue{{Field: label, Message: fmt.Sprintf("handler %q cannot be instantiated: %v", name, err)}}
	}
	if !implements(instance) {
		return []TemplateIssue{{Field: label, Message: fmt.Sprintf("handler %q does not implement %s", name, contract)}}
	}
	return nil
}

func nodeLabel(node TemplateNode) string {
	if name := strings.TrimSpace(node.Name); name != "" {
		return name
	}
	return strings.TrimSpace(node.ID)
}

func issuesToError(issues []TemplateIssue) error {
	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Field < issues[j].Field
	})
	fieldErrors := make([]goerrors.FieldError, 0, len(issues))
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: issue.Field, Message: issue.Message})
		messages = append(messages, issue.Field+": "+issue.Message)
	}
	return goerrors.NewValidation("core: template validation failed: "+strings.Join(messages, "; "), fieldErrors...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorTemplateInvalid).
		WithSeverity(goerrors.SeverityError)
}
