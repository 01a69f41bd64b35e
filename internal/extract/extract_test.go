package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

func testFile(path string, content []byte, lang types.Language) *types.File {
	return &types.File{
		ID:          path,
		Path:        path,
		ContentHash: identity.ContentHash(content),
		Language:    lang,
	}
}

func TestRustExtractsFunctionsAndCalls(t *testing.T) {
	src := []byte(`
mod shapes {
    struct Circle { radius: f64 }

    impl Circle {
        fn area(&self) -> f64 {
            helper(self.radius)
        }
    }

    fn helper(x: f64) -> f64 {
        x * x
    }
}
`)
	f := testFile("src/shapes.rs", src, types.LangRust)
	res, err := Rust(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "shapes")
	assert.Contains(t, fqns, "shapes::Circle")
	assert.Contains(t, fqns, "shapes::Circle::area")
	assert.Contains(t, fqns, "shapes::helper")

	var callees []string
	for _, c := range res.Calls {
		callees = append(callees, c.CalleeFQN)
	}
	assert.Contains(t, callees, "helper")
	// The impl block's symbol takes the type's FQN, so it collides with
	// the struct it implements.
	assert.Equal(t, []string{"shapes::Circle"}, res.Collisions)
}

func TestRustUseDeclarationClassification(t *testing.T) {
	src := []byte(`
use crate::shapes::Circle;
use super::util;
use std::collections::HashMap;

fn main() {}
`)
	f := testFile("src/main.rs", src, types.LangRust)
	res, err := Rust(f, src)
	require.NoError(t, err)

	require.Len(t, res.Imports, 3)
	assert.Equal(t, types.ImportUseCrate, res.Imports[0].Kind)
	assert.Equal(t, types.ImportUseSuper, res.Imports[1].Kind)
	assert.Equal(t, types.ImportPlainUse, res.Imports[2].Kind)
}

func TestRustCFGCoversBranches(t *testing.T) {
	src := []byte(`
fn classify(x: i32) -> i32 {
    if x > 0 {
        return 1;
    } else {
        return -1;
    }
}
`)
	f := testFile("src/lib.rs", src, types.LangRust)
	res, err := Rust(f, src)
	require.NoError(t, err)

	var kinds []types.CfgKind
	for _, b := range res.CfgBlocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Contains(t, kinds, types.CfgEntry)
	assert.Contains(t, kinds, types.CfgIf)
	assert.Contains(t, kinds, types.CfgElse)
}

func TestPythonExtractsClassesAndImports(t *testing.T) {
	src := []byte(`
import os
from collections import OrderedDict

class Widget:
    def render(self):
        helper()

def helper():
    pass
`)
	f := testFile("widget.py", src, types.LangPython)
	res, err := Python(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "Widget")
	assert.Contains(t, fqns, "Widget.render")
	assert.Contains(t, fqns, "helper")

	require.Len(t, res.Imports, 2)
	assert.Equal(t, types.ImportPlainUse, res.Imports[0].Kind)
	assert.Equal(t, types.ImportFromImport, res.Imports[1].Kind)
	assert.Equal(t, []string{"OrderedDict"}, res.Imports[1].ImportedNames)
}

func TestJavaExtractsPackageScopedFQNs(t *testing.T) {
	src := []byte(`
package com.example.app;

import java.util.List;

class Widget {
    void render() {
        helper();
    }
}
`)
	f := testFile("Widget.java", src, types.LangJava)
	res, err := Java(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "com.example.app.Widget")
	assert.Contains(t, fqns, "com.example.app.Widget.render")
}

func TestJavaScriptExtractsClassesAndImports(t *testing.T) {
	src := []byte(`
import { helper } from "./util";

class Widget {
    render() {
        helper();
    }
}
`)
	f := testFile("widget.js", src, types.LangJavaScript)
	res, err := JavaScript(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "Widget")
	assert.Contains(t, fqns, "Widget.render")

	require.Len(t, res.Imports, 1)
	assert.Equal(t, []string{"helper"}, res.Imports[0].ImportedNames)
	assert.Equal(t, []string{"util"}, res.Imports[0].PathComponents)
}

func TestTypeScriptExtractsInterfaces(t *testing.T) {
	src := []byte(`
interface Shape {
    area(): number;
}

class Circle implements Shape {
    area(): number {
        return 0;
    }
}
`)
	f := testFile("shape.ts", src, types.LangTypeScript)
	res, err := TypeScript(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "Shape")
	assert.Contains(t, fqns, "Circle")
	assert.Contains(t, fqns, "Circle.area")
}

func TestCExtractsFunctionsAndIncludes(t *testing.T) {
	src := []byte(`
#include <stdio.h>

int helper(int x) {
    return x * 2;
}

int main() {
    return helper(21);
}
`)
	f := testFile("main.c", src, types.LangC)
	res, err := C(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "helper")
	assert.Contains(t, fqns, "main")

	require.Len(t, res.Imports, 1)
	assert.Equal(t, []string{"stdio.h"}, res.Imports[0].ImportedNames)
}

func TestCppExtractsNamespacesAndClasses(t *testing.T) {
	src := []byte(`
namespace shapes {
class Circle {
public:
    double area() {
        return 0;
    }
};
}
`)
	f := testFile("shapes.cpp", src, types.LangCpp)
	res, err := Cpp(f, src)
	require.NoError(t, err)

	var fqns []string
	for _, s := range res.Symbols {
		fqns = append(fqns, s.FQN)
	}
	assert.Contains(t, fqns, "shapes")
	assert.Contains(t, fqns, "shapes::Circle")
	assert.Contains(t, fqns, "shapes::Circle::area")
}

func TestForDispatchesByLanguage(t *testing.T) {
	src := []byte("def f():\n    pass\n")
	f := testFile("a.py", src, types.LangPython)
	res, err := For(f, src)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Symbols)

	_, err = For(testFile("a.xyz", src, types.LangUnknown), src)
	assert.Error(t, err)
}
