// Package marc builds the MARC record deltas submitted to the upload
// pipeline.
package marc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFieldPath = errors.New("invalid field path")

// FieldPath addresses one subfield, written as "TTTIIS": a three character
// tag, two indicators ("_" for blank) and a subfield code, e.g. "035__9".
type FieldPath struct {
	Tag  string
	Ind1 string
	Ind2 string
	Code string
}

func ParseFieldPath(s string) (FieldPath, error) {
	if len(s) != 6 {
		return FieldPath{}, fmt.Errorf("%w: %q", ErrInvalidFieldPath, s)
	}
	return FieldPath{
		Tag:  s[0:3],
		Ind1: indicator(s[3]),
		Ind2: indicator(s[4]),
		Code: s[5:6],
	}, nil
}

func (p FieldPath) String() string {
	return p.Tag + blank(p.Ind1) + blank(p.Ind2) + p.Code
}

func indicator(b byte) string {
	if b == '_' {
		return " "
	}
	return string(b)
}

func blank(ind string) string {
	if ind == "" || ind == " " {
		return "_"
	}
	return ind
}

type Subfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

type ControlField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type DataField struct {
	Tag       string     `xml:"tag,attr"`
	Ind1      string     `xml:"ind1,attr"`
	Ind2      string     `xml:"ind2,attr"`
	Subfields []Subfield `xml:"subfield"`
}

// Record is a (partial) bibliographic record. A delta carries only the
// 001 control field plus the fields being written.
type Record struct {
	XMLName       xml.Name       `xml:"record"`
	ControlFields []ControlField `xml:"controlfield"`
	DataFields    []DataField    `xml:"datafield"`
}

// NewDelta starts a record addressed at recid.
func NewDelta(recid int) *Record {
	return &Record{
		ControlFields: []ControlField{{Tag: "001", Value: strconv.Itoa(recid)}},
	}
}

// RecID returns the value of control field 001, or 0 when absent.
func (r *Record) RecID() int {
	for _, cf := range r.ControlFields {
		if cf.Tag == "001" {
			id, _ := strconv.Atoi(cf.Value)
			return id
		}
	}
	return 0
}

// AddField appends a data field. Empty indicators are written as blanks.
func (r *Record) AddField(tag, ind1, ind2 string, subfields ...Subfield) *Record {
	r.DataFields = append(r.DataFields, DataField{
		Tag:       tag,
		Ind1:      orBlank(ind1),
		Ind2:      orBlank(ind2),
		Subfields: subfields,
	})
	return r
}

func orBlank(s string) string {
	if s == "" || s == "_" {
		return " "
	}
	return s
}

// Values returns every value of the given subfield path, in field order.
func (r *Record) Values(path FieldPath) []string {
	var out []string
	for _, df := range r.DataFields {
		if df.Tag != path.Tag || df.Ind1 != orBlank(path.Ind1) || df.Ind2 != orBlank(path.Ind2) {
			continue
		}
		for _, sf := range df.Subfields {
			if sf.Code == path.Code {
				out = append(out, sf.Value)
			}
		}
	}
	return out
}

// MARCXML renders the record wrapped in a <collection> element, the form
// the upload endpoint accepts.
func (r *Record) MARCXML() ([]byte, error) {
	doc := struct {
		XMLName xml.Name `xml:"collection"`
		Xmlns   string   `xml:"xmlns,attr"`
		Records []*Record
	}{
		Xmlns:   "http://www.loc.gov/MARC21/slim",
		Records: []*Record{r},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", r.RecID(), err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Sub is shorthand for building subfields.
func Sub(code, value string) Subfield {
	return Subfield{Code: code, Value: value}
}

// Contains reports whether any value equals want, ignoring surrounding
// whitespace.
func Contains(values []string, want string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}
