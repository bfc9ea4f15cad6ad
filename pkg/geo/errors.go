package geo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyName is returned when a record carries no usable name.
var ErrEmptyName = errors.New("empty name")

// ErrNotFound is returned by store queries for an unknown node.
var ErrNotFound = errors.New("not found")

// ErrNoRootColumn is returned by the column planner when no column is
// marked must_exist.
var ErrNoRootColumn = errors.New("no must_exist column: nothing to anchor resolution")

// ParentNotFoundError reports a parent id absent from the store. It is
// retry-eligible: the parent may appear later in the same batch.
type ParentNotFoundError struct {
	ParentID int64
	Code     string
}

func (e *ParentNotFoundError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("parent %q not found", e.Code)
	}
	return fmt.Sprintf("parent %d not found", e.ParentID)
}

// UnresolvedParentError is terminal for a record whose parent was still
// missing after the deferred pass.
type UnresolvedParentError struct {
	Source string
	Line   int
	Key    string
	Err    error
}

func (e *UnresolvedParentError) Error() string {
	return fmt.Sprintf("%s:%d %s: unresolved after retry: %v", e.Source, e.Line, e.Key, e.Err)
}

func (e *UnresolvedParentError) Unwrap() error { return e.Err }

// DuplicateSiblingError reports two existing nodes with the same normalized
// name under one parent. The resolver logs it and uses the first match.
type DuplicateSiblingError struct {
	ParentID int64
	Key      string
	IDs      []int64
}

func (e *DuplicateSiblingError) Error() string {
	return fmt.Sprintf("parent %d has %d children matching %q: %v", e.ParentID, len(e.IDs), e.Key, e.IDs)
}

// AliasWriteError wraps a persistence failure while adding an alias.
type AliasWriteError struct {
	NodeID int64
	Text   string
	Err    error
}

func (e *AliasWriteError) Error() string {
	return fmt.Sprintf("write alias %q for node %d: %v", e.Text, e.NodeID, e.Err)
}

func (e *AliasWriteError) Unwrap() error { return e.Err }

// CyclicColumnDefinitionError lists the columns the planner could not place.
type CyclicColumnDefinitionError struct {
	Columns []string
}

func (e *CyclicColumnDefinitionError) Error() string {
	return "cyclic column definitions: " + strings.Join(e.Columns, ", ")
}

// RecordError is a malformed source row: wrong field count, unparsable
// number, missing required value.
type RecordError struct {
	Source string
	Line   int
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordLevel reports whether err concerns a single record and must not
// abort the batch. Store and alias write failures are not record level.
func IsRecordLevel(err error) bool {
	if err == nil {
		return false
	}
	var aw *AliasWriteError
	if errors.As(err, &aw) {
		return false
	}
	var (
		pnf *ParentNotFoundError
		upe *UnresolvedParentError
		re  *RecordError
		ds  *DuplicateSiblingError
	)
	switch {
	case errors.As(err, &pnf), errors.As(err, &upe), errors.As(err, &re), errors.As(err, &ds):
		return true
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrNotFound):
		return true
	}
	return false
}

// UnknownColumnError reports a column definition referencing a column that
// is not defined.
type UnknownColumnError struct {
	Column string
	Ref    string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("column %q references unknown column %q", e.Column, e.Ref)
}

// DuplicateColumnError reports two column definitions with the same name.
type DuplicateColumnError struct {
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("column %q defined twice", e.Column)
}
