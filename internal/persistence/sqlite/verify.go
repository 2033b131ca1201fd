// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CheckMode selects the consistency pragma run by VerifyIntegrity.
type CheckMode string

const (
	CheckQuick CheckMode = "quick"
	CheckFull  CheckMode = "full"
)

func (m CheckMode) pragma() string {
	if m == CheckFull {
		return "PRAGMA integrity_check"
	}
	return "PRAGMA quick_check"
}

// VerifyIntegrity opens the database file read-only and returns the problems
// sqlite reports for it. No problems means the file is sound.
func VerifyIntegrity(ctx context.Context, path string, mode CheckMode) ([]string, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open %s read-only: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, mode.pragma())
	if err != nil {
		return nil, fmt.Errorf("%s check: %w", mode, err)
	}
	defer rows.Close()

	var problems []string
	seen := 0
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("%s check: %w", mode, err)
		}
		seen++
		if !strings.EqualFold(line, "ok") {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s check: %w", mode, err)
	}
	if seen == 0 {
		return []string{fmt.Sprintf("%s check returned no rows", mode)}, nil
	}
	return problems, nil
}
