// Package jsonpath applies ordered ADD/REMOVE operations against a JSON
// document by path expression, backing the request- and response-side
// structural edits of a route's TransformRule. Built on gjson/sjson, as in
// the ai-gateway repos in the example pack; the teacher has no equivalent
// (it mutates typed structs directly instead of operating on raw JSON).
package jsonpath

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// Op is one {op, path, value?} JSON-path operation.
type Op struct {
	Op    string // "ADD" or "REMOVE"
	Path  string // gjson/sjson dotted/bracketed path expression
	Value interface{}
}

const (
	OpAdd    = "ADD"
	OpRemove = "REMOVE"
)

// Apply runs each op against body in declared order, returning the resulting
// document. A failing individual operation (unknown op kind, sjson error) is
// logged and skipped; a REMOVE against a path with no match is a silent
// no-op per spec. Processing continues with the next op on either document.
func Apply(log *zap.SugaredLogger, body []byte, ops []Op) []byte {
	doc := body
	for _, op := range ops {
		var (
			next []byte
			err  error
		)
		switch op.Op {
		case OpRemove:
			if !gjson.GetBytes(doc, op.Path).Exists() {
				continue
			}
			next, err = sjson.DeleteBytes(doc, op.Path)
		case OpAdd:
			next, err = sjson.SetBytes(doc, op.Path, op.Value)
		default:
			if log != nil {
				log.Warnw("unknown json-path op, skipping", "op", op.Op, "path", op.Path)
			}
			continue
		}
		if err != nil {
			if log != nil {
				log.Warnw("json-path op failed, skipping", "op", op.Op, "path", op.Path, "error", err)
			}
			continue
		}
		doc = next
	}
	return doc
}
