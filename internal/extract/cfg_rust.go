package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/types"
)

// buildCFG emits a best-effort control-flow block list for a Rust
// function body (spec.md §4.4's "CFG extraction (Rust only, AST-based)"
// paragraph). It is intentionally coarse: one CfgBlock per
// control-flow-relevant construct rather than a fully reduced basic
// block graph, since spec.md only requires the block/terminator
// classification to be available for callers, not a complete dataflow
// CFG.
func buildCFG(result *Result, file *types.File, body *tree_sitter.Node, functionFQN string) {
	result.addCfgBlock(types.CfgBlock{
		Kind:        types.CfgEntry,
		Terminator:  types.TermFallthrough,
		FunctionFQN: functionFQN,
		Span:        spanOf(body),
	})
	walkCFG(result, file, body, functionFQN)
}

func walkCFG(result *Result, file *types.File, node *tree_sitter.Node, functionFQN string) {
	switch node.Kind() {
	case "if_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgIf,
			Terminator:  types.TermConditional,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
		if alt := node.ChildByFieldName("alternative"); alt != nil {
			result.addCfgBlock(types.CfgBlock{
				Kind:        types.CfgElse,
				Terminator:  types.TermFallthrough,
				FunctionFQN: functionFQN,
				Span:        spanOf(alt),
			})
		}
	case "loop_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgLoop,
			Terminator:  types.TermFallthrough,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "while_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgWhile,
			Terminator:  types.TermConditional,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "for_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgFor,
			Terminator:  types.TermConditional,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "match_expression":
		body := node.ChildByFieldName("body")
		if body != nil {
			for i := uint(0); i < body.NamedChildCount(); i++ {
				arm := body.NamedChild(i)
				if arm == nil || arm.Kind() != "match_arm" {
					continue
				}
				result.addCfgBlock(types.CfgBlock{
					Kind:        types.CfgMatchArm,
					Terminator:  types.TermFallthrough,
					FunctionFQN: functionFQN,
					Span:        spanOf(arm),
				})
			}
			result.addCfgBlock(types.CfgBlock{
				Kind:        types.CfgMatchMerge,
				Terminator:  types.TermFallthrough,
				FunctionFQN: functionFQN,
				Span:        spanOf(node),
			})
		}
	case "return_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgPlainBlock,
			Terminator:  types.TermReturn,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "break_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgPlainBlock,
			Terminator:  types.TermBreak,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "continue_expression":
		result.addCfgBlock(types.CfgBlock{
			Kind:        types.CfgPlainBlock,
			Terminator:  types.TermContinue,
			FunctionFQN: functionFQN,
			Span:        spanOf(node),
		})
	case "function_item", "closure_expression":
		// Nested functions get their own CFG when visited as definitions;
		// closures get none. Neither folds its blocks into the enclosing one.
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			walkCFG(result, file, child, functionFQN)
		}
	}
}
