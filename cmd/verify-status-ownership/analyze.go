// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

const (
	meetingDomain = "/internal/domain/meeting/"
	modelPkg      = "/internal/domain/meeting/model"
)

var reasonLiteral = regexp.MustCompile(`^R_[A-Z_]+$`)

// packages allowed to call MeetingStore.UpdateStatus directly
var statusWriters = []string{
	filepath.Join("internal", "executor") + string(filepath.Separator),
	filepath.Join("internal", "domain", "meeting", "store") + string(filepath.Separator),
}

// Analyze loads patterns and returns one "file:line: message" entry per
// violation. Test files are not checked.
func Analyze(patterns ...string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}

	var violations []string
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			pos := pkg.Fset.Position(file.Pos())
			filename := pos.Filename
			if filename == "" || strings.HasSuffix(filename, "_test.go") {
				continue
			}
			violations = append(violations, inspectFile(pkg.Fset, file, filename, pkg.PkgPath, pkg.TypesInfo)...)
		}
	}
	return violations, nil
}

func inspectFile(fset *token.FileSet, file *ast.File, filename, pkgPath string, info *types.Info) []string {
	var out []string
	report := func(p token.Pos, msg string) {
		out = append(out, fmt.Sprintf("%s:%d: %s", filename, fset.Position(p).Line, msg))
	}
	mayWrite := isStatusWriter(filename)
	ownsReasons := strings.HasSuffix(pkgPath, modelPkg)

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			sel, ok := node.Fun.(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != "UpdateStatus" || mayWrite {
				return true
			}
			if isMeetingStoreMethod(sel, info) {
				report(sel.Pos(), "meeting status written outside the executor")
			}
		case *ast.BasicLit:
			if node.Kind != token.STRING || ownsReasons {
				return true
			}
			s, err := strconv.Unquote(node.Value)
			if err == nil && reasonLiteral.MatchString(s) {
				report(node.Pos(), fmt.Sprintf("raw reason code %q (use the model.R* constants)", s))
			}
		}
		return true
	})
	return out
}

func isStatusWriter(filename string) bool {
	for _, dir := range statusWriters {
		if strings.Contains(filename, dir) {
			return true
		}
	}
	return false
}

func isMeetingStoreMethod(sel *ast.SelectorExpr, info *types.Info) bool {
	if info == nil {
		return false
	}
	obj, ok := info.Uses[sel.Sel].(*types.Func)
	if !ok || obj.Pkg() == nil {
		return false
	}
	return strings.Contains(obj.Pkg().Path()+"/", meetingDomain)
}
