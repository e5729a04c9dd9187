package batch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// OpKind is the write an item resolves to.
type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	}
	return "unknown"
}

// Operation is a planned write for one item. Values follow Table.Fields; a
// nil entry is written as NULL.
type Operation struct {
	Kind     OpKind
	RecordID int64
	ParentID int64
	ItemID   int64
	Values   []any
}

// maxScore is the exclusive bound of a NUMERIC(6, 2) score column.
const maxScore = 10000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// "score" accepts a decimal in [0, maxScore). It expects "numeric" to run
	// first so NaN and Inf never reach it.
	_ = v.RegisterValidation("score", func(fl validator.FieldLevel) bool {
		f, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil && f >= 0 && f < maxScore
	})
	return v
}

// CheckItem rejects an item whose required field is missing or whose values
// fail the table rules. It runs before any round-trip for the item.
func CheckItem(t Table, it Item) error {
	if it.Fields[t.Required] == "" {
		return inputError(it.ID, "%s missing for %s %d", t.Required, t.ItemColumn, it.ID)
	}
	for _, f := range t.Fields {
		v, ok := it.Fields[f]
		if !ok || v == "" {
			continue
		}
		rule, ok := t.Rules[f]
		if !ok {
			continue
		}
		if err := validate.Var(v, rule); err != nil {
			return inputError(it.ID, "invalid %s %q for %s %d", f, v, t.ItemColumn, it.ID)
		}
	}
	return nil
}

// Plan turns a resolution into an insert or a full overwrite of the payload
// fields. it must already have passed CheckItem.
func Plan(t Table, res Resolution, parentID int64, it Item) Operation {
	values := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		if v := it.Fields[f]; v != "" {
			values[i] = v
		}
	}
	op := Operation{ParentID: parentID, ItemID: it.ID, Values: values}
	if res.Found {
		op.Kind = OpUpdate
		op.RecordID = res.RecordID
	} else {
		op.Kind = OpInsert
	}
	return op
}

// Statement renders the parameterized SQL for op against t.
func (op Operation) Statement(t Table) (string, []any) {
	switch op.Kind {
	case OpUpdate:
		sets := make([]string, 0, len(t.Fields)+1)
		for i, f := range t.Fields {
			sets = append(sets, fmt.Sprintf("%s = $%d", f, i+1))
		}
		if t.StampColumn != "" {
			sets = append(sets, t.StampColumn+" = now()")
		}
		args := append(append([]any{}, op.Values...), op.RecordID)
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
			t.Name, strings.Join(sets, ", "), t.IDColumn, len(args)), args
	default:
		cols := append([]string{t.ItemColumn, t.ParentColumn}, t.Fields...)
		marks := make([]string, len(cols))
		for i := range cols {
			marks[i] = fmt.Sprintf("$%d", i+1)
		}
		args := append([]any{op.ItemID, op.ParentID}, op.Values...)
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			t.Name, strings.Join(cols, ", "), strings.Join(marks, ", ")), args
	}
}
