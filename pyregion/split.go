// Package pyregion splits Python solver code into the three descriptor regions
// (input parameters, cost function, algorithm logic) using tree-sitter.
//
// Only top-level statements are classified. Consecutive statements with the
// same role are merged into one span so comments and blank lines between them
// survive; separate spans for a role are joined with a blank line.
package pyregion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/selection"
)

// ErrNoCode is returned when there is nothing to split.
var ErrNoCode = errors.New("no code to split")

var (
	costKeywords  = []string{"cost", "objective", "energy", "loss", "qubo", "hamiltonian", "penalty", "fitness"}
	inputKeywords = []string{"param", "input", "config", "setup", "load", "read_", "instance"}
)

// Block is one classified top-level statement.
type Block struct {
	Role  selection.Role
	Kind  string // tree-sitter node type
	Name  string // function or class name, if any
	Start int
	End   int
	Line  int // 1-based start line
}

// Splitter wraps a tree-sitter parser. It is safe for concurrent use.
type Splitter struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewSplitter creates a Python region splitter.
func NewSplitter() *Splitter {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Splitter{parser: p}
}

var defaultSplitter = sync.OnceValue(NewSplitter)

// Split classifies code with a shared splitter.
func Split(ctx context.Context, code string) (descriptor.Regions, error) {
	return defaultSplitter().Split(ctx, code)
}

// Split returns a region for each role that has at least one statement.
// Roles with no statements are left nil so the descriptor builder reports them.
func (s *Splitter) Split(ctx context.Context, code string) (descriptor.Regions, error) {
	blocks, err := s.Blocks(ctx, code)
	if err != nil {
		return descriptor.Regions{}, err
	}
	return Assemble(code, blocks), nil
}

// Blocks parses code and classifies each top-level statement.
func (s *Splitter) Blocks(ctx context.Context, code string) ([]Block, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrNoCode
	}
	content := []byte(code)

	s.mu.Lock()
	tree, err := s.parser.ParseCtx(ctx, nil, content)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	blocks := make([]Block, 0, root.NamedChildCount())
	seenDefinition := false

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == "comment" || isDocstring(node, i) {
			continue
		}

		b := Block{
			Kind:  node.Type(),
			Start: int(node.StartByte()),
			End:   int(node.EndByte()),
			Line:  int(node.StartPoint().Row) + 1,
		}
		b.Role, b.Name = classify(node, content, seenDefinition)
		if isDefinition(node) {
			seenDefinition = true
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Assemble merges classified blocks into regions. A region's Text is its
// role's spans joined with a blank line; Start and End enclose all of them,
// so code[Start:End] also holds whatever other roles sit in between.
func Assemble(code string, blocks []Block) descriptor.Regions {
	type span struct{ start, end int }
	spans := make(map[selection.Role][]span, len(selection.Roles))

	var prev selection.Role
	for i, b := range blocks {
		list := spans[b.Role]
		if i > 0 && prev == b.Role && len(list) > 0 {
			list[len(list)-1].end = b.End
		} else {
			list = append(list, span{b.Start, b.End})
		}
		spans[b.Role] = list
		prev = b.Role
	}

	var regions descriptor.Regions
	for _, role := range selection.Roles {
		list := spans[role]
		if len(list) == 0 {
			continue
		}
		parts := make([]string, len(list))
		for i, sp := range list {
			parts[i] = code[sp.start:sp.end]
		}
		regions.Set(role, &descriptor.Region{
			Start: list[0].start,
			End:   list[len(list)-1].end,
			Text:  strings.Join(parts, "\n\n"),
		})
	}
	return regions
}

func classify(node *sitter.Node, content []byte, seenDefinition bool) (selection.Role, string) {
	switch node.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		return selection.RoleInputParameters, ""

	case "function_definition", "class_definition":
		name := nodeName(node, content)
		return roleForName(name), name

	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			name := nodeName(def, content)
			return roleForName(name), name
		}

	case "expression_statement":
		if isParameterAssignment(node, seenDefinition) {
			return selection.RoleInputParameters, assignedName(node, content)
		}
	}
	return selection.RoleAlgorithmLogic, ""
}

// roleForName applies the naming heuristics to a function or class name.
func roleForName(name string) selection.Role {
	lower := strings.ToLower(name)
	for _, kw := range costKeywords {
		if strings.Contains(lower, kw) {
			return selection.RoleCostFunction
		}
	}
	for _, kw := range inputKeywords {
		if strings.Contains(lower, kw) {
			return selection.RoleInputParameters
		}
	}
	return selection.RoleAlgorithmLogic
}

// isParameterAssignment reports whether an expression statement declares an input.
// Before the first definition every assignment counts. After it, only
// assignments whose value is not a call do.
func isParameterAssignment(node *sitter.Node, seenDefinition bool) bool {
	if node.NamedChildCount() == 0 {
		return false
	}
	expr := node.NamedChild(0)
	if expr.Type() != "assignment" {
		return false
	}
	if !seenDefinition {
		return true
	}
	right := expr.ChildByFieldName("right")
	return right != nil && right.Type() != "call"
}

func isDefinition(node *sitter.Node) bool {
	switch node.Type() {
	case "function_definition", "class_definition", "decorated_definition":
		return true
	}
	return false
}

// isDocstring reports whether node is a bare string literal at module top.
func isDocstring(node *sitter.Node, index int) bool {
	if index != 0 || node.Type() != "expression_statement" || node.NamedChildCount() == 0 {
		return false
	}
	return node.NamedChild(0).Type() == "string"
}

func nodeName(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return string(content[nameNode.StartByte():nameNode.EndByte()])
}

func assignedName(node *sitter.Node, content []byte) string {
	left := node.NamedChild(0).ChildByFieldName("left")
	if left == nil {
		return ""
	}
	return string(content[left.StartByte():left.EndByte()])
}
