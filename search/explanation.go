// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"strconv"
	"strings"
)

// Explanation describes how a document's score was computed.
type Explanation struct {
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

func newExplanation(value float64, description string, details ...*Explanation) *Explanation {
	return &Explanation{Value: value, Description: description, Details: details}
}

// IsMatch returns true if the explained document matches the query.
func (e *Explanation) IsMatch() bool {
	return e.Value > 0
}

func (e *Explanation) addDetail(d *Explanation) {
	e.Details = append(e.Details, d)
}

func (e *Explanation) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e *Explanation) write(sb *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		sb.WriteString("  ")
	}
	sb.WriteString(formatFloat(e.Value))
	sb.WriteString(" = ")
	sb.WriteString(e.Description)
	sb.WriteByte('\n')
	for _, d := range e.Details {
		d.write(sb, depth+1)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
