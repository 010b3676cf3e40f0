package tools

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
)

// Table maps tool names to tools, in declaration order.
type Table struct {
	byName map[string]ITool
	names  []string
	list   []ITool
}

// NewTable returns a table of the tools. Names must be unique.
func NewTable(list ...ITool) (*Table, error) {
	t := &Table{
		byName: make(map[string]ITool, len(list)),
	}
	for _, tool := range list {
		if err := t.Add(tool); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add adds the tool, or returns an error if the name is taken.
func (t *Table) Add(tool ITool) error {
	name := tool.Name()
	if name == "" {
		return errors.New("tool name is required")
	}
	if _, ok := t.byName[name]; ok {
		return errors.Newf("duplicate tool: %s", name)
	}
	t.byName[name] = tool
	t.names = append(t.names, name)
	t.list = append(t.list, tool)
	return nil
}

// Get returns the tool by exact name.
func (t *Table) Get(name string) (ITool, bool) {
	if t == nil {
		return nil, false
	}
	tool, ok := t.byName[name]
	return tool, ok
}

// Has returns true if the exact name is in the table.
func (t *Table) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.byName[name]
	return ok
}

// Names returns the tool names in declaration order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.names...)
}

// SortedNames returns the tool names sorted.
func (t *Table) SortedNames() []string {
	names := t.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of tools.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.list)
}

// List returns the tools in declaration order.
func (t *Table) List() []ITool {
	if t == nil {
		return nil
	}
	return append([]ITool(nil), t.list...)
}

// LLMTools returns the function definitions sent to the model.
func (t *Table) LLMTools() []llms.Tool {
	if t.Len() == 0 {
		return nil
	}
	defs := make([]llms.Tool, 0, len(t.list))
	for _, tool := range t.list {
		defs = append(defs, llms.FunctionTool(tool.Name(), tool.Description(), tool.Parameters()))
	}
	return defs
}
